package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-ar-invoicing/internal/config"
)

func newDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Remove the stored Xero connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadCLI()
			if err != nil {
				return err
			}
			if err := newAccountingClient(cfg).Disconnect(cmd.Context()); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), renderError(err))
				return ErrIncomplete
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Xero disconnected."))
			return nil
		},
	}
}
