package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-ar-invoicing/internal/client"
	"github.com/pesio-ai/be-ar-invoicing/internal/config"
)

func newStatusCmd() *cobra.Command {
	var grpcAddr string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether Xero is connected",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadCLI()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			status, err := newAccountingClient(cfg).CheckStatus(ctx)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), renderError(err))
				return ErrIncomplete
			}

			var serving *bool
			if grpcAddr != "" {
				ok, err := grpcServing(ctx, grpcAddr, cfg.APIToken)
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), renderError(err))
					return ErrIncomplete
				}
				serving = &ok
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderStatus(status, serving))
			if !status.Connected {
				return ErrIncomplete
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&grpcAddr, "grpc", "", "also query the gRPC health service at this address")
	return cmd
}

func grpcServing(ctx context.Context, addr, token string) (bool, error) {
	hc, err := client.NewHealthGRPCClient(addr, token)
	if err != nil {
		return false, err
	}
	defer hc.Close()
	return hc.XeroServing(ctx)
}
