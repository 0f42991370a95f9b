package txbuilder

import (
	"errors"
	"math/big"
	"time"

	"github.com/mgpai22/equibasket/asset"
	"github.com/mgpai22/equibasket/datum"
	"github.com/mgpai22/equibasket/ledger"
	"github.com/mgpai22/equibasket/vault"
)

const (
	// DefaultMinLovelace is the reserve every datum-carrying output holds.
	DefaultMinLovelace = 5_000_000
	// DefaultValidity is how long an assembled transaction stays valid.
	DefaultValidity = 15 * time.Minute
)

// Scripts locates the protocol's validators and minting policies.
type Scripts struct {
	OracleAddress        string
	BasketFactoryAddress string
	VaultAddress         string
	PoolAddress          string
	BasketTokenPolicyID  string
	LpTokenPolicyID      string
}

// Config is everything a Builder needs besides its collaborators.
// OracleAdmin, when set, restricts price reads to oracles that key
// administers; nil trusts any output at the oracle address.
type Config struct {
	Scripts     Scripts
	Signer      ledger.SignerContext
	MinLovelace *big.Int
	Validity    time.Duration
	Health      vault.Params
	OracleAdmin *datum.PubKeyHash
}

// DefaultConfig returns the protocol constants with no scripts or signer.
func DefaultConfig() Config {
	return Config{
		MinLovelace: big.NewInt(DefaultMinLovelace),
		Validity:    DefaultValidity,
		Health:      vault.DefaultParams(),
	}
}

func (c Config) validate() error {
	s := c.Scripts
	if s.OracleAddress == "" || s.BasketFactoryAddress == "" || s.VaultAddress == "" || s.PoolAddress == "" {
		return errors.New("all script addresses are required")
	}
	if _, err := asset.NewUnit(s.BasketTokenPolicyID, ""); err != nil {
		return errors.New("invalid basket token policy id: " + err.Error())
	}
	if _, err := asset.NewUnit(s.LpTokenPolicyID, ""); err != nil {
		return errors.New("invalid lp token policy id: " + err.Error())
	}
	if c.MinLovelace == nil || c.MinLovelace.Sign() <= 0 {
		return errors.New("min lovelace must be positive")
	}
	if c.Validity <= 0 {
		return errors.New("validity window must be positive")
	}
	if c.Health.PricePrecision == nil || c.Health.PricePrecision.Sign() <= 0 || c.Health.CollateralRatio == nil {
		return errors.New("health parameters are required")
	}
	return nil
}
