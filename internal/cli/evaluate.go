package cli

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mgpai22/equibasket/evaluator"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <tx-file>",
	Short: "Evaluate the scripts of a signed transaction against the snapshot",
	Long: `Run phase-two validation of a CBOR transaction (hex encoded in
tx-file) in the configured WASM evaluator, resolving its inputs from the
ledger snapshot, and print the redeemers with their execution units.`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read transaction: %w", err)
	}
	txBytes, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return fmt.Errorf("transaction is not hex: %w", err)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	evalCfg, err := a.cfg.EvaluatorConfig()
	if err != nil {
		return err
	}
	ev, err := evaluator.New(cmd.Context(), evalCfg, a.logger)
	if err != nil {
		return err
	}
	defer ev.Close(cmd.Context())

	redeemers, err := ev.EvaluateWith(cmd.Context(), txBytes, a.snapshot)
	if err != nil {
		return err
	}
	out := make([]string, len(redeemers))
	for i, r := range redeemers {
		out[i] = hex.EncodeToString(r)
	}
	return printJSON(cmd.OutOrStdout(), out)
}
