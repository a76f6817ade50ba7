// Package cli implements the invoicer command.
package cli

import (
	"errors"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pesio-ai/be-ar-invoicing/internal/client"
	"github.com/pesio-ai/be-ar-invoicing/internal/config"
	"github.com/pesio-ai/be-ar-invoicing/internal/httpclient"
	"github.com/pesio-ai/be-ar-invoicing/internal/logger"
)

// ErrIncomplete is returned when a command ran but did not fully succeed.
// The message has already been printed.
var ErrIncomplete = errors.New("incomplete")

// NewRootCmd builds the invoicer command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "invoicer",
		Short: "Create Xero invoices for brokerage contracts",
		Long: `invoicer groups selected contracts by the party responsible for paying
brokerage and creates one Xero invoice per recipient. When the Xero
connection is missing or expires, it opens an authorization window and
retries the affected invoices once.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initConfig()
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.config/invoicer/config.yaml)")
	flags.String("server-url", "", "dashboard backend URL")
	flags.String("api-token", "", "API token for the dashboard backend")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("server_url", flags.Lookup("server-url"))
	_ = viper.BindPFlag("api_token", flags.Lookup("api-token"))
	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))

	root.AddCommand(newBatchCmd(), newStatusCmd(), newConnectCmd(), newDisconnectCmd())
	return root
}

// Execute runs the command tree.
func Execute() error {
	return NewRootCmd().Execute()
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetCLIDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("$HOME/.config/invoicer")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("INVOICER")
	// INVOICER_POPUP_BROWSER for popup.browser
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

func newLogger(cfg *config.CLI) *logger.Logger {
	return logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: "development",
		ServiceName: "invoicer",
		Output:      os.Stderr,
	})
}

func newAccountingClient(cfg *config.CLI) *client.AccountingClient {
	return client.NewAccountingClient(cfg.ServerURL,
		httpclient.WithToken(cfg.APIToken),
		httpclient.WithTimeout(cfg.Timeout),
	)
}

// originOf returns scheme://host of a URL.
func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
