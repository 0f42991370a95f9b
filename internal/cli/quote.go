package cli

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mgpai22/equibasket/datum"
	"github.com/mgpai22/equibasket/units"
)

var (
	quoteSlippage string
	quoteAdaIn    bool
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Price actions against current state without building them",
}

var quoteSwapCmd = &cobra.Command{
	Use:   "swap <basket-id> <amount-in>",
	Short: "Quote a swap; basket tokens in unless --ada-in",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[1])
		if err != nil {
			return err
		}
		tolerance, err := parseSlippage(quoteSlippage)
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		q, err := a.builder.QuoteSwap(cmd.Context(), args[0], amount, !quoteAdaIn, tolerance)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), q)
	},
}

var quoteLiquidityCmd = &cobra.Command{
	Use:   "liquidity <basket-id> <basket-in> <ada-in>",
	Short: "Quote the LP tokens a deposit would mint",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		basketIn, err := parseAmount(args[1])
		if err != nil {
			return err
		}
		adaIn, err := parseAmount(args[2])
		if err != nil {
			return err
		}
		tolerance, err := parseSlippage(quoteSlippage)
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		q, err := a.builder.QuoteLiquidity(cmd.Context(), args[0], basketIn, adaIn, tolerance)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), q)
	},
}

var quoteBasketPriceCmd = &cobra.Command{
	Use:   "basket-price <basket-id>",
	Short: "Price a basket at the latest oracle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		q, err := a.builder.QuoteBasketPrice(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), q)
	},
}

var quoteHealthCmd = &cobra.Command{
	Use:   "health <vault-ref>",
	Short: "Report a vault's collateral ratio",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := datum.ParseOutputRef(args[0])
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		h, err := a.builder.VaultHealth(cmd.Context(), ref)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), h)
	},
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	quoteCmd.AddCommand(quoteSwapCmd, quoteLiquidityCmd, quoteBasketPriceCmd, quoteHealthCmd)
	quoteCmd.PersistentFlags().StringVar(&quoteSlippage, "slippage", "", "tolerance in percent, e.g. 0.5")
	quoteSwapCmd.Flags().BoolVar(&quoteAdaIn, "ada-in", false, "swap lovelace for basket tokens")
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

func parseSlippage(s string) (units.Slippage, error) {
	if s == "" {
		return units.Slippage{Type: units.SlippageNone}, nil
	}
	pct, err := decimal.NewFromString(s)
	if err != nil {
		return units.Slippage{}, fmt.Errorf("invalid slippage %q: %w", s, err)
	}
	return units.Slippage{Type: units.SlippagePercent, Value: pct}, nil
}
