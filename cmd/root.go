package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/chargewatch/app"
	"github.com/kilianp07/chargewatch/config"
	"github.com/kilianp07/chargewatch/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "chargewatch",
	Short: "Charging session monitor",
	Long: "chargewatch subscribes to the vehicle state topic of every inventoried charger\n" +
		"and records charging sessions with their energy consumption and RFID tag.",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logs, err := logger.Setup(cfg.Logging.Options())
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logs.Close()

	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}
