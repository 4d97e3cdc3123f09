package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"quiz-session-engine/internal/config"
	"quiz-session-engine/internal/logging"
)

type options struct {
	configPath string
	token      string
	debug      bool

	cfg config.Config
}

// Execute runs the CLI until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "quiz",
		Short:         "Quiz room participant client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.token != "" {
				cfg.API.Token = opts.token
			}
			opts.cfg = cfg

			logger := logging.NewLogger(opts.debug || cfg.Log.Debug)
			cmd.SetContext(logging.WithLogger(cmd.Context(), logger))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&opts.token, "token", "", "bearer token (overrides api.token)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(newRoomsCmd(opts))
	cmd.AddCommand(newPlayCmd(opts))
	cmd.AddCommand(newLeaveCmd(opts))
	cmd.AddCommand(newLeaderboardCmd(opts))
	cmd.AddCommand(newScoreCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	return cmd
}
