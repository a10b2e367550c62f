package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"postbot/internal/app"
	"postbot/internal/config"
	"postbot/pkg/logx"
)

const stopTimeout = 10 * time.Second

var (
	cfgPath  string
	envFiles []string
)

var rootCmd = &cobra.Command{
	Use:   "postbot",
	Short: "Compose, schedule and publish Telegram channel posts",
	Long: `postbot walks channel owners through composing a post in chat,
stores it with a publish time and delivers it to the channel when due.

Running without a subcommand is the same as "postbot run".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFiles...); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), app.ModeBot)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot: chat surface, scheduler loop and owner notices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), app.ModeBot)
	},
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run only the scheduler loop, without polling for updates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), app.ModeDispatch)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config file and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := app.Check(cmd.Context(), cfgPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", cfgPath)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending storage migrations and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		driver, err := app.Migrate(cmd.Context(), cfgPath, logx.NewConsole("info"))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "storage (%s) is up to date\n", driver)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.yaml", "path to config (json or yaml)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", []string{".env"}, "dotenv files to load before the config")
	rootCmd.AddCommand(runCmd, dispatchCmd, validateCmd, migrateCmd)
}

func serve(parent context.Context, mode app.Mode) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfgPath, mode)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
		defer stopCancel()
		_ = a.Stop(stopCtx, app.StopFatalError)
		return fmt.Errorf("start: %w", err)
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		if a.Err() != nil {
			reason = app.StopFatalError
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	stopErr := a.Stop(stopCtx, reason)
	if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return stopErr
}
