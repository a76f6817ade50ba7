package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-ar-invoicing/internal/config"
)

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Authorize Xero in a popup window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadCLI()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := newLogger(cfg)
			auth, shutdown, err := startAuthorizer(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer shutdown()

			api := newAccountingClient(cfg)
			if err := auth.flow.Authorize(ctx, api.AuthorizationURL(auth.relayURL)); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), renderError(err))
				return ErrIncomplete
			}

			status, err := api.CheckStatus(ctx)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), renderError(err))
				return ErrIncomplete
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStatus(status, nil))
			return nil
		},
	}
}
