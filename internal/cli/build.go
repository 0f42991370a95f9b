package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mgpai22/equibasket/internal/service"
)

var (
	buildParams string
	buildSubmit bool
)

var buildCmd = &cobra.Command{
	Use:   "build <action>",
	Short: "Build an unsigned transaction for a protocol action",
	Long: `Build an unsigned transaction from JSON parameters read from --params
(a file, or - for stdin). With --submit the transaction is applied to the
snapshot, rebuilding from fresh state when an input was spent meanwhile.

Actions: ` + strings.Join(service.ActionNames(), ", "),
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().StringVarP(&buildParams, "params", "p", "-", "JSON parameters file, - for stdin")
	buildCmd.Flags().BoolVar(&buildSubmit, "submit", false, "submit the built transaction")
}

func readParams(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read params: %w", err)
	}
	return data, nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	action := args[0]
	if _, err := service.Action(action); err != nil {
		return err
	}
	params, err := readParams(cmd, buildParams)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if !buildSubmit {
		tx, err := a.svc.Build(cmd.Context(), action, params)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), tx)
	}

	res, err := a.svc.BuildAndSubmit(cmd.Context(), action, params)
	if err != nil {
		return err
	}
	a.logger.Info("Transaction submitted",
		zap.String("action", action),
		zap.Stringer("tx_id", res.TxID),
		zap.Int("attempts", res.Attempts))
	return printJSON(cmd.OutOrStdout(), res)
}
