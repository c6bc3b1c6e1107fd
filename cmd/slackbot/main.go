package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/savaki/slack-dify-bot/pkg/app"
	"github.com/savaki/slack-dify-bot/pkg/config"
	"github.com/savaki/slack-dify-bot/pkg/logging"
	"github.com/savaki/slack-dify-bot/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const shutdownTimeout = 10 * time.Second

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "slackbot",
		Short:         "Slack relay that answers messages with a Dify chat app",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "optional config file (yaml, json or toml); environment variables take precedence")

	root.AddCommand(serveCmd())
	root.AddCommand(socketCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Slack events webhook over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadViper()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				v.Set("addr", addr)
			}

			return run(v, func(ctx context.Context, a *app.App) error {
				return a.Server().ListenAndServe(ctx, a.Config.Addr, shutdownTimeout)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8000", "listen address")
	return cmd
}

func socketCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "socket",
		Short: "Receive Slack events over Socket Mode (needs SLACK_APP_TOKEN)",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadViper()
			if err != nil {
				return err
			}

			return run(v, func(ctx context.Context, a *app.App) error {
				runner, err := a.SocketRunner()
				if err != nil {
					return err
				}
				return runner.Run(ctx)
			})
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Version)
		},
	}
}

func loadViper() (*viper.Viper, error) {
	v := config.NewViper()
	if configPath == "" {
		return v, nil
	}

	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", configPath, err)
	}
	return v, nil
}

// run builds the app and blocks in serve until SIGINT or SIGTERM
func run(v *viper.Viper, serve func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.LoadFrom(v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("starting slackbot", "version", version.Version)
	return serve(ctx, a)
}
