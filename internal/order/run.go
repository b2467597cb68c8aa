package order

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"restaurant-pos/internal/order/api/http"
	"restaurant-pos/internal/order/app/core"
	"restaurant-pos/internal/xpkg/config"
	"restaurant-pos/internal/xpkg/logger"
)

type params struct {
	orderParams *core.OrderParams
	configPath  string
	cfg         *config.Config
}

// Execute starts order service
func Execute(ctx context.Context, mylog logger.Logger, args []string) error {
	newCtx, close := signal.NotifyContext(ctx, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer close()

	params, err := parseParams(args)
	if errors.Is(err, core.ErrHelp) {
		return err
	}
	if err == nil {
		err = validateParams(params)
	}
	if err != nil {
		mylog.Action("command_validation_failed").Error("Invalid command received", err)
		return err
	}

	mylog.Action("command_validation_completed").WithGroup("details").Info("Order service configured",
		"port", params.orderParams.Port,
		"max_concurrent", params.orderParams.MaxConcurrent,
		"store_driver", params.cfg.Store.Driver,
		"timezone", params.cfg.Business.Timezone,
		"tax_rate", params.cfg.Business.TaxRate,
	)

	return serve(newCtx, http.NewServer(newCtx, context.Background(), params.cfg, params.orderParams, mylog), mylog)
}

type runStopper interface {
	Run() error
	Stop(ctx context.Context) error
}

// serve blocks until the signal context ends or Run returns, then stops the
// server within core.WaitTime.
func serve(ctx context.Context, server runStopper, mylog logger.Logger) error {
	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- server.Run()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		mylog.Action("shutdown_signal_received").Info("Shutdown signal received")
	case runErr = <-runErrCh:
		if runErr != nil {
			mylog.Action("order_service_failed").Error("Server failed unexpectedly", runErr)
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), core.WaitTime*time.Second)
	defer cancel()
	if err := server.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func parseParams(args []string) (*params, error) {
	fs := flag.NewFlagSet("order-service", flag.ContinueOnError)
	showHelp := fs.Bool("help", false, "Show help")
	configPath := fs.String("config-path", "config.yaml", "path for config yaml")
	port := fs.Int("port", 3000, "HTTP port for checkout, POS and delivery endpoints")
	maxConcurrent := fs.Int("max-concurrent", 50, "Max requests served at once, the rest get 503")

	if err := fs.Parse(args); err != nil {
		return nil, core.ErrParseCmd
	}
	if *showHelp {
		fs.Usage()
		return nil, core.ErrHelp
	}

	return &params{
		orderParams: &core.OrderParams{Port: *port, MaxConcurrent: *maxConcurrent},
		configPath:  *configPath,
	}, nil
}

// validateParams loads the config and rejects settings the server cannot
// start with.
func validateParams(p *params) error {
	if p.orderParams.Port <= 0 || p.orderParams.Port >= 65536 {
		return fmt.Errorf("port must be in [1: 65,535]: %d", p.orderParams.Port)
	}
	if p.orderParams.MaxConcurrent <= 0 {
		return fmt.Errorf("max number of concurrent requests must be positive: %d", p.orderParams.MaxConcurrent)
	}

	cfg, err := config.LoadConfig(p.configPath)
	if err != nil {
		return err
	}
	if cfg.Store.Driver == config.DriverPostgres && cfg.DB.Host == "" {
		return fmt.Errorf("database.host is required for the %s store", config.DriverPostgres)
	}
	if d := cfg.Delivery; d != nil && d.RadiusKm > 0 {
		if d.CenterLat < -90 || d.CenterLat > 90 || d.CenterLng < -180 || d.CenterLng > 180 {
			return fmt.Errorf("delivery center out of range: %v,%v", d.CenterLat, d.CenterLng)
		}
	}
	p.cfg = cfg
	return nil
}
