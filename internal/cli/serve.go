package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mgpai22/equibasket/internal/httpapi"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve state, quotes and builds over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		addr := a.cfg.HTTP.Listen
		if serveListen != "" {
			addr = serveListen
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := httpapi.NewServer(addr, httpapi.NewHandler(a.svc, a.logger), a.cfg.HTTP.ReadTimeout, a.cfg.HTTP.WriteTimeout, a.logger)
		if err := srv.Run(ctx); err != nil {
			a.logger.Error("Server stopped", zap.Error(err))
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "override the configured listen address")
}
