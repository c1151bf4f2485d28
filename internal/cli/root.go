// Package cli implements the sessionctl command line tool: a sibling process
// to the agent that operates on the same credential database.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"storefront-session-agent/internal/api"
	"storefront-session-agent/internal/auth"
	"storefront-session-agent/internal/config"
	"storefront-session-agent/internal/credstore"
	"storefront-session-agent/internal/logging"
)

var (
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    *config.Config
	logger *slog.Logger
	creds  credstore.Store
	store  *auth.Store
	client *api.Client
)

// NewRootCmd creates the root cobra command for sessionctl.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sessionctl",
		Short: "sessionctl — storefront session management",
		Long:  "sessionctl logs in and out of the storefront backend and inspects the locally persisted session.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			if flagDebug {
				flagLogLevel = "debug"
			}
			if flagLogLevel == "" {
				flagLogLevel = cfg.LogLevel
			}
			if flagLogFormat == "" {
				flagLogFormat = cfg.LogFormat
			}
			logger = logging.New(logging.ParseLevel(flagLogLevel), flagLogFormat)

			creds, err = credstore.NewSQLiteStore(cfg.CredentialDBPath, logger)
			if err != nil {
				return err
			}

			client = api.NewClient(cfg.APIBaseURL, nil, logger)
			store = auth.NewStore(client, logger)
			store.Subscribe(auth.NewSyncListener(creds, logger))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if creds != nil {
				creds.Close()
			}
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format (text, json)")

	root.AddCommand(
		newLoginCmd(),
		newRegisterCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newStatusCmd(),
		newFetchCmd(),
	)

	return root
}
