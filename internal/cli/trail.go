package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/mgpai22/equibasket/audit"
)

var trailRequest string

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Print the stored audit trail",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer log.Sync()
		if cfg.Audit.Path == "" {
			return errors.New("audit.path is not configured")
		}
		sink, err := audit.OpenLevelDB(cfg.Audit.Path)
		if err != nil {
			return err
		}
		defer sink.Close()

		entries := []audit.Entry{}
		err = sink.Replay(func(e audit.Entry) error {
			if trailRequest == "" || e.RequestID == trailRequest {
				entries = append(entries, e)
			}
			return nil
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), entries)
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().StringVar(&trailRequest, "request", "", "only entries of this request id")
}
