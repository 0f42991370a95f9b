// Package asset names native assets: policy ids, hex token names and the
// CIP-14 fingerprints wallets display.
package asset

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"golang.org/x/crypto/blake2b"

	"github.com/mgpai22/equibasket/plutus"
)

const (
	// Lovelace is the unit string of the native coin.
	Lovelace = "lovelace"

	policyIDHexLen  = 56
	maxAssetNameLen = 32
)

// FromText hex-encodes the UTF-8 bytes of s.
func FromText(s string) string {
	return plutus.TextToHex(s)
}

// ToText decodes a hex token name back to text.
func ToText(h string) (string, error) {
	return plutus.HexToText(h)
}

// Unit identifies a native asset: a 28-byte policy id plus a token name of
// at most 32 bytes, both hex in text form.
type Unit struct {
	PolicyID  string
	AssetName string
}

// NewUnit validates and normalizes a policy id and hex token name.
func NewUnit(policyID, assetNameHex string) (Unit, error) {
	policyID = strings.ToLower(policyID)
	assetNameHex = strings.ToLower(assetNameHex)
	if len(policyID) != policyIDHexLen {
		return Unit{}, fmt.Errorf("policy id must be %d hex characters, got %d", policyIDHexLen, len(policyID))
	}
	if _, err := hex.DecodeString(policyID); err != nil {
		return Unit{}, fmt.Errorf("invalid policy id: %w", err)
	}
	name, err := hex.DecodeString(assetNameHex)
	if err != nil {
		return Unit{}, fmt.Errorf("invalid asset name: %w", err)
	}
	if len(name) > maxAssetNameLen {
		return Unit{}, fmt.Errorf("asset name is %d bytes, max %d", len(name), maxAssetNameLen)
	}
	return Unit{PolicyID: policyID, AssetName: assetNameHex}, nil
}

// BasketToken is the unit minted for a basket: the policy id followed by
// hex(UTF-8(basketID)).
func BasketToken(policyID, basketID string) (Unit, error) {
	return NewUnit(policyID, FromText(basketID))
}

// ParseUnit splits the concatenated policy id + asset name form.
func ParseUnit(s string) (Unit, error) {
	if len(s) < policyIDHexLen {
		return Unit{}, fmt.Errorf("unit %q is shorter than a policy id", s)
	}
	return NewUnit(s[:policyIDHexLen], s[policyIDHexLen:])
}

func (u Unit) String() string {
	return u.PolicyID + u.AssetName
}

func (u Unit) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *Unit) UnmarshalText(text []byte) error {
	parsed, err := ParseUnit(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Name returns the token name as text when it is valid UTF-8.
func (u Unit) Name() (string, error) {
	return ToText(u.AssetName)
}

// Fingerprint returns the CIP-14 asset fingerprint:
// bech32("asset", blake2b-160(policy_id || asset_name)).
func (u Unit) Fingerprint() (string, error) {
	raw, err := hex.DecodeString(u.String())
	if err != nil {
		return "", fmt.Errorf("invalid unit %q: %w", u, err)
	}
	h, err := blake2b.New(20, nil)
	if err != nil {
		return "", err
	}
	h.Write(raw)
	words, err := bech32.ConvertBits(h.Sum(nil), 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode("asset", words)
}
