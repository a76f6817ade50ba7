package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-ar-invoicing/internal/billing"
	"github.com/pesio-ai/be-ar-invoicing/internal/config"
	"github.com/pesio-ai/be-ar-invoicing/internal/logger"
	"github.com/pesio-ai/be-ar-invoicing/internal/popup"
	"github.com/pesio-ai/be-ar-invoicing/internal/service"
)

func newBatchCmd() *cobra.Command {
	var (
		file   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Create one invoice per recipient for a selection of contracts",
		Example: `  invoicer batch -f selection.yaml
  invoicer batch -f - --json < selection.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadCLI()
			if err != nil {
				return err
			}
			sel, err := readSelection(file)
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

			opts := service.BatchOptions{
				MaxConcurrency:   cfg.Batch.MaxConcurrency,
				RelayURL:         auth.relayURL,
				ReprobeAttempts:  cfg.Batch.ReprobeAttempts,
				ReprobeInterval:  cfg.Batch.ReprobeInterval,
				ReprobeMaxWindow: cfg.Batch.ReprobeMaxWindow,
			}
			svc := service.NewBatchService(newAccountingClient(cfg), auth.flow, opts, log)

			result, err := svc.CreateInvoices(ctx, sel.Records, sel.Fields)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), renderError(err))
				return ErrIncomplete
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, renderResult(result))
			}
			if !result.Succeeded() {
				return ErrIncomplete
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "selection file (YAML), - for stdin")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readSelection(file string) (*billing.Selection, error) {
	if file == "-" {
		return billing.DecodeSelection(os.Stdin)
	}
	return billing.LoadSelection(file)
}

type authorizer struct {
	flow     *popup.Flow
	relayURL string
}

// startAuthorizer starts the loopback relay and builds the popup flow that
// listens on it.
func startAuthorizer(ctx context.Context, cfg *config.CLI, log *logger.Logger) (*authorizer, func(), error) {
	appOrigin := originOf(cfg.ServerURL)
	allowed := append(popup.AllowedOrigins(appOrigin), cfg.Popup.AllowedOrigins...)

	relay := popup.NewRelay(allowed, log)
	if err := relay.Start(ctx, cfg.Popup.RelayAddr); err != nil {
		return nil, nil, fmt.Errorf("start relay: %w", err)
	}
	shutdown := func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = relay.Shutdown(sctx)
	}

	flow := popup.NewFlow(popup.ExecOpener{Browser: cfg.Popup.Browser}, relay, popup.Config{
		Width:          cfg.Popup.Width,
		Height:         cfg.Popup.Height,
		ScreenWidth:    cfg.Popup.ScreenWidth,
		ScreenHeight:   cfg.Popup.ScreenHeight,
		PollInterval:   cfg.Popup.PollInterval,
		Timeout:        cfg.Popup.Timeout,
		CloseGrace:     cfg.Popup.CloseGrace,
		AllowedOrigins: allowed,
	}, popup.WithLogger(log))

	return &authorizer{flow: flow, relayURL: relay.URL()}, shutdown, nil
}
