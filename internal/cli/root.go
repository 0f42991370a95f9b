// Package cli implements the equibasket command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	logLevel   string
)

// Version is overridden at build time with -ldflags.
var Version = "0.1.0-dev"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "equibasket",
	Short: "Transaction builder for the equibasket index protocol",
	Long: `equibasket builds unsigned transactions for the basket index protocol:
oracle publication, basket management, collateralized vaults that mint
basket tokens, and basket/ADA liquidity pools. Protocol state is read from
a ledger snapshot and every build is recorded in an audit trail.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
