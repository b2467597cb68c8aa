package notsub

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"restaurant-pos/internal/notsub/adapter/consumer"
	"restaurant-pos/internal/notsub/app/core"
	"restaurant-pos/internal/xpkg/config"
	"restaurant-pos/internal/xpkg/logger"
)

type params struct {
	subParams  *core.SubscriberParams
	configPath string
	cfg        *config.Config
}

// Execute starts notification subscriber
func Execute(ctx context.Context, mylog logger.Logger, args []string) error {
	newCtx, close := signal.NotifyContext(ctx, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer close()

	params, err := parseParams(args)
	if err != nil {
		if errors.Is(err, core.ErrHelp) {
			return err
		}
		mylog.Action("command_parse_failed").Error("Invalid command received", err)
		return err
	}
	mylog.Action("command_parse_completed").Debug("Received params", "config_path", params.configPath, "max_concurrent", params.subParams.MaxConcurrent)

	if err = validateParams(params); err != nil {
		mylog.Action("command_validation_failed").Error("Invalid command received", err)
		return err
	}
	mylog.Action("command_validation_completed").Info("Successfully validate params")

	runCtx, cancel := context.WithCancel(newCtx)
	defer cancel()

	notsub := consumer.NewNotification(runCtx, cancel, context.Background(), params.cfg, params.subParams.MaxConcurrent, mylog)

	stopCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), core.WaitTime*time.Second)
	}

	if err := notsub.Run(); err != nil {
		mylog.Action("notsub_run_failed").Error("Notification subscriber service stopped with error", err)
		shutdownCtx, stop := stopCtx()
		defer stop()
		_ = notsub.Stop(shutdownCtx)
		return err
	}
	<-runCtx.Done()
	mylog.Action("shutdown_signal_received").Info("Shutdown signal received")

	shutdownCtx, stop := stopCtx()
	defer stop()
	return notsub.Stop(shutdownCtx)
}

// parseParams parse params from terminal
func parseParams(args []string) (*params, error) {
	fs := flag.NewFlagSet("notification-subscriber", flag.ContinueOnError)
	showHelp := fs.Bool("help", false, "Show help")
	configPath := fs.String("config-path", "config.yaml", "path for config yaml")
	maxConcurrent := fs.Int("max-concurrent", 10, "Max notifications sent at once")

	if err := fs.Parse(args); err != nil {
		return nil, core.ErrParseCmd
	}

	if *showHelp {
		fs.Usage()
		return nil, core.ErrHelp
	}

	return &params{
		subParams:  &core.SubscriberParams{MaxConcurrent: *maxConcurrent},
		configPath: *configPath,
	}, nil
}

// validateParams validates params
func validateParams(params *params) error {
	cfg, err := config.LoadConfig(params.configPath)
	if err != nil {
		return err
	}
	params.cfg = cfg

	if params.subParams.MaxConcurrent <= 0 {
		return fmt.Errorf("max number of concurrent notifications must be positive: %d", params.subParams.MaxConcurrent)
	}
	if cfg.RMQ.Host == "" {
		return fmt.Errorf("rabbitmq.host is required")
	}
	if cfg.WhatsApp.BaseURL == "" || cfg.WhatsApp.PhoneNumberID == "" {
		return fmt.Errorf("whatsapp.base_url and whatsapp.phone_number_id are required")
	}
	return nil
}
