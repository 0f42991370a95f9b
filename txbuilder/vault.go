package txbuilder

import (
	"context"
	"fmt"
	"math/big"

	"github.com/mgpai22/equibasket/asset"
	"github.com/mgpai22/equibasket/datum"
	"github.com/mgpai22/equibasket/ledger"
	"github.com/mgpai22/equibasket/vault"
)

// OpenVaultParams opens a vault against a basket with initial collateral.
type OpenVaultParams struct {
	BasketID   string   `json:"basket_id"`
	Collateral *big.Int `json:"collateral"`
}

// VaultAmountParams changes an existing vault by Amount: lovelace for
// deposit and withdraw, basket token units for mint and burn.
type VaultAmountParams struct {
	Vault  datum.OutputRef `json:"vault"`
	Amount *big.Int        `json:"amount"`
}

// LiquidateParams names the vault to liquidate.
type LiquidateParams struct {
	Vault datum.OutputRef `json:"vault"`
}

// position is everything a vault action reads.
type position struct {
	vault  VaultState
	basket BasketState
	oracle OracleState
	prices map[string]*big.Int
	token  asset.Unit
}

func (p position) references() []ledger.UTxO {
	return []ledger.UTxO{p.oracle.UTxO, p.basket.UTxO}
}

// BuildOpenVault locks collateral in a new vault with no debt.
func (b *Builder) BuildOpenVault(ctx context.Context, p OpenVaultParams) (*ledger.UnsignedTx, error) {
	r := b.start("open_vault", map[string]interface{}{"basket_id": p.BasketID, "collateral": fmt.Sprint(p.Collateral)})
	if err := requirePositive("collateral", p.Collateral); err != nil {
		return nil, r.fail(err)
	}
	if p.Collateral.Cmp(b.cfg.MinLovelace) < 0 {
		return nil, r.fail(invalidf("collateral %s is below the minimum output value %s", p.Collateral, b.cfg.MinLovelace))
	}

	r.enter(StageQuery, "loading basket", nil)
	if _, err := b.findBasket(ctx, p.BasketID); err != nil {
		return nil, r.fail(err)
	}

	r.enter(StageCompute, "vault datum computed", nil)
	next := datum.VaultDatum{
		Owner:         b.cfg.Signer.PubKeyHash,
		BasketID:      p.BasketID,
		CollateralAda: new(big.Int).Set(p.Collateral),
		MintedTokens:  new(big.Int),
		CreatedAt:     b.timestamp(),
	}

	enc, err := r.encode(next)
	if err != nil {
		return nil, err
	}
	return r.done(&ledger.UnsignedTx{
		Outputs: []ledger.Output{{
			Address: b.cfg.Scripts.VaultAddress,
			Value:   ledger.Lovelace(p.Collateral),
			Datum:   enc[0],
		}},
		RequiredSigners: b.signers(),
	})
}

// BuildDeposit adds collateral to a vault.
func (b *Builder) BuildDeposit(ctx context.Context, p VaultAmountParams) (*ledger.UnsignedTx, error) {
	r := b.start("deposit", vaultFields(p))
	if err := requirePositive("deposit amount", p.Amount); err != nil {
		return nil, r.fail(err)
	}
	pos, err := b.loadPosition(ctx, r, p.Vault, true)
	if err != nil {
		return nil, err
	}

	r.enter(StageCompute, "computing vault state", nil)
	next := pos.vault.Datum.WithCollateral(add(pos.vault.Datum.CollateralAda, p.Amount))
	if err := b.requireHealthy(pos, next); err != nil {
		return nil, r.fail(err)
	}
	return b.finishVault(r, pos, next, datum.Deposit{Amount: p.Amount}, nil)
}

// BuildWithdraw releases collateral to the signer. Withdrawing everything
// from a vault without debt closes it.
func (b *Builder) BuildWithdraw(ctx context.Context, p VaultAmountParams) (*ledger.UnsignedTx, error) {
	r := b.start("withdraw", vaultFields(p))
	if err := requirePositive("withdraw amount", p.Amount); err != nil {
		return nil, r.fail(err)
	}
	pos, err := b.loadPosition(ctx, r, p.Vault, true)
	if err != nil {
		return nil, err
	}

	r.enter(StageCompute, "computing vault state", nil)
	cur := pos.vault.Datum
	if p.Amount.Cmp(cur.CollateralAda) > 0 {
		return nil, r.fail(invalidf("withdraw of %s exceeds collateral %s", p.Amount, cur.CollateralAda))
	}
	next := cur.WithCollateral(sub(cur.CollateralAda, p.Amount))
	closing := next.CollateralAda.Sign() == 0 && next.MintedTokens.Sign() == 0
	if !closing {
		if err := b.requireHealthy(pos, next); err != nil {
			return nil, r.fail(err)
		}
		if next.CollateralAda.Cmp(b.cfg.MinLovelace) < 0 {
			return nil, r.fail(invalidf("remaining collateral %s is below the minimum output value %s", next.CollateralAda, b.cfg.MinLovelace))
		}
	}

	redeemer := datum.Withdraw{Amount: p.Amount}
	if closing {
		enc, err := r.encode(redeemer)
		if err != nil {
			return nil, err
		}
		return r.done(&ledger.UnsignedTx{
			ReferenceInputs: pos.references(),
			Inputs:          []ledger.ScriptInput{{UTxO: pos.vault.UTxO, Redeemer: enc[0]}},
			RequiredSigners: b.signers(),
		})
	}
	return b.finishVault(r, pos, next, redeemer, nil)
}

// BuildMint mints basket tokens against a vault's collateral.
func (b *Builder) BuildMint(ctx context.Context, p VaultAmountParams) (*ledger.UnsignedTx, error) {
	r := b.start("mint", vaultFields(p))
	if err := requirePositive("mint amount", p.Amount); err != nil {
		return nil, r.fail(err)
	}
	pos, err := b.loadPosition(ctx, r, p.Vault, true)
	if err != nil {
		return nil, err
	}

	r.enter(StageCompute, "computing vault state", nil)
	next := pos.vault.Datum.WithMinted(add(pos.vault.Datum.MintedTokens, p.Amount))
	if err := b.requireHealthy(pos, next); err != nil {
		return nil, r.fail(err)
	}
	mint := &tokenChange{amount: p.Amount, redeemer: datum.MintTokens{Ref: pos.vault.UTxO.Ref}}
	return b.finishVault(r, pos, next, datum.Mint{Amount: p.Amount}, mint)
}

// BuildBurn burns basket tokens to repay vault debt.
func (b *Builder) BuildBurn(ctx context.Context, p VaultAmountParams) (*ledger.UnsignedTx, error) {
	r := b.start("burn", vaultFields(p))
	if err := requirePositive("burn amount", p.Amount); err != nil {
		return nil, r.fail(err)
	}
	pos, err := b.loadPosition(ctx, r, p.Vault, true)
	if err != nil {
		return nil, err
	}

	r.enter(StageCompute, "computing vault state", nil)
	cur := pos.vault.Datum
	if p.Amount.Cmp(cur.MintedTokens) > 0 {
		return nil, r.fail(invalidf("burn of %s exceeds minted %s", p.Amount, cur.MintedTokens))
	}
	next := cur.WithMinted(sub(cur.MintedTokens, p.Amount))
	burn := &tokenChange{amount: new(big.Int).Neg(p.Amount), redeemer: datum.BurnTokens{Ref: pos.vault.UTxO.Ref}}
	return b.finishVault(r, pos, next, datum.Burn{Amount: p.Amount}, burn)
}

// BuildLiquidate closes an undercollateralized vault. The liquidator burns
// the vault's whole debt and receives its collateral.
func (b *Builder) BuildLiquidate(ctx context.Context, p LiquidateParams) (*ledger.UnsignedTx, error) {
	r := b.start("liquidate", map[string]interface{}{"vault": p.Vault.String()})
	pos, err := b.loadPosition(ctx, r, p.Vault, false)
	if err != nil {
		return nil, err
	}

	r.enter(StageCompute, "assessing vault health", nil)
	h, err := b.cfg.Health.Assess(pos.prices, pos.basket.Datum, pos.vault.Datum)
	if err != nil {
		return nil, r.fail(err)
	}
	if h.Healthy {
		return nil, r.fail(fmt.Errorf("vault %s at %s: %w", p.Vault, h.Ratio, ErrVaultHealthy))
	}

	records := []datum.Record{datum.Liquidate{}}
	minted := pos.vault.Datum.MintedTokens
	if minted.Sign() > 0 {
		records = append(records, datum.BurnTokens{Ref: pos.vault.UTxO.Ref})
	}
	enc, err := r.encode(records...)
	if err != nil {
		return nil, err
	}
	tx := &ledger.UnsignedTx{
		ReferenceInputs: pos.references(),
		Inputs:          []ledger.ScriptInput{{UTxO: pos.vault.UTxO, Redeemer: enc[0]}},
		RequiredSigners: b.signers(),
	}
	if minted.Sign() > 0 {
		tx.Mints = []ledger.Mint{mintOf(pos.token, new(big.Int).Neg(minted), enc[1])}
	}
	return r.done(tx)
}

// loadPosition runs the query and decode stages shared by vault actions.
// Returned errors are already wrapped.
func (b *Builder) loadPosition(ctx context.Context, r *run, ref datum.OutputRef, ownerOnly bool) (position, error) {
	r.enter(StageQuery, "loading vault, basket and oracle", nil)
	v, err := b.findVault(ctx, ref)
	if err != nil {
		return position{}, r.fail(err)
	}
	bs, err := b.findBasket(ctx, v.Datum.BasketID)
	if err != nil {
		return position{}, r.fail(err)
	}
	o, err := b.latestOracle(ctx)
	if err != nil {
		return position{}, r.fail(err)
	}

	r.enter(StageDecode, "vault decoded", map[string]interface{}{
		"collateral": v.Datum.CollateralAda.String(),
		"minted":     v.Datum.MintedTokens.String(),
	})
	if err := v.Datum.Validate(); err != nil {
		return position{}, r.fail(err)
	}
	if ownerOnly && v.Datum.Owner != b.cfg.Signer.PubKeyHash {
		return position{}, r.fail(fmt.Errorf("vault %s: %w", ref, ErrNotOwner))
	}
	token, err := b.basketToken(v.Datum.BasketID)
	if err != nil {
		return position{}, r.fail(err)
	}
	return position{
		vault:  v,
		basket: bs,
		oracle: o,
		prices: vault.PriceMap(o.Datum),
		token:  token,
	}, nil
}

func (b *Builder) requireHealthy(pos position, next datum.VaultDatum) error {
	h, err := b.cfg.Health.Assess(pos.prices, pos.basket.Datum, next)
	if err != nil {
		return err
	}
	return b.cfg.Health.Require(h)
}

type tokenChange struct {
	amount   *big.Int
	redeemer datum.BasketTokenRedeemer
}

// finishVault encodes and assembles an action that recreates the vault.
func (b *Builder) finishVault(r *run, pos position, next datum.VaultDatum, redeemer datum.VaultRedeemer, tokens *tokenChange) (*ledger.UnsignedTx, error) {
	records := []datum.Record{next, redeemer}
	if tokens != nil {
		records = append(records, tokens.redeemer)
	}
	enc, err := r.encode(records...)
	if err != nil {
		return nil, err
	}

	value := pos.vault.UTxO.Value.Clone()
	value.Lovelace = new(big.Int).Set(next.CollateralAda)
	tx := &ledger.UnsignedTx{
		ReferenceInputs: pos.references(),
		Inputs:          []ledger.ScriptInput{{UTxO: pos.vault.UTxO, Redeemer: enc[1]}},
		Outputs: []ledger.Output{{
			Address: b.cfg.Scripts.VaultAddress,
			Value:   value,
			Datum:   enc[0],
		}},
		RequiredSigners: b.signers(),
	}
	if tokens != nil {
		tx.Mints = []ledger.Mint{mintOf(pos.token, tokens.amount, enc[2])}
	}
	return r.done(tx)
}

func vaultFields(p VaultAmountParams) map[string]interface{} {
	return map[string]interface{}{"vault": p.Vault.String(), "amount": fmt.Sprint(p.Amount)}
}
