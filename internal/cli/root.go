package cli

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"vocab-battle/internal/config"
)

var (
	port       string
	configPath string
	logLevel   string
)

// Execute runs the CLI.
func Execute() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	return newRootCmd().ExecuteContext(context.Background())
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab-battle",
		Short: "Vocabulary battle rooms over a shared document store",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return err
			}
			setupLogging(cfg, cmd.Flags().Changed("log-level"))
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&port, "port", envOr("PORT", "8080"), "port to listen on")
	cmd.PersistentFlags().StringVar(&configPath, "config", envOr("CONFIG_PATH", "config/config.yaml"), "path to YAML config")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", envOr("LOG_LEVEL", ""), "log level (debug, info, warn, error)")
	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewSimulateCmd())
	cmd.AddCommand(NewBotCmd(&configPath))
	return cmd
}

// setupLogging applies the flag or env level, then the config level, defaulting to info.
func setupLogging(cfg config.Config, flagSet bool) {
	if cfg.Log.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	raw := logLevel
	if !flagSet && raw == "" {
		raw = cfg.Log.Level
	}
	level := zerolog.InfoLevel
	if raw != "" {
		parsed, err := zerolog.ParseLevel(raw)
		if err != nil {
			log.Warn().Err(err).Str("level", raw).Msg("unknown log level, using info")
		} else {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
