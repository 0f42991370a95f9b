package cli

import (
	"github.com/spf13/cobra"

	"github.com/mgpai22/equibasket/datum"
	"github.com/mgpai22/equibasket/ledger"
)

var (
	stateRaw   bool
	stateOwner string
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show protocol state from the ledger snapshot",
	Long: `Print the decoded oracles, baskets, vaults and pools. With --raw the
undecoded outputs at every script address are printed instead.`,
	RunE: runState,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.Flags().BoolVar(&stateRaw, "raw", false, "print raw outputs per script address")
	stateCmd.Flags().StringVar(&stateOwner, "owner", "", "only vaults owned by this pub key hash")
}

func runState(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	if stateRaw {
		s := a.builder.Config().Scripts
		utxos, err := ledger.QueryMany(ctx, a.snapshot, []string{
			s.OracleAddress, s.BasketFactoryAddress, s.VaultAddress, s.PoolAddress,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), utxos)
	}

	var owner *datum.PubKeyHash
	if stateOwner != "" {
		pkh, err := datum.ParsePubKeyHash(stateOwner)
		if err != nil {
			return err
		}
		owner = &pkh
	}
	oracles, err := a.builder.Oracles(ctx)
	if err != nil {
		return err
	}
	baskets, err := a.builder.Baskets(ctx)
	if err != nil {
		return err
	}
	vaults, err := a.builder.Vaults(ctx, owner)
	if err != nil {
		return err
	}
	pools, err := a.builder.Pools(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]interface{}{
		"oracles": oracles,
		"baskets": baskets,
		"vaults":  vaults,
		"pools":   pools,
	})
}
