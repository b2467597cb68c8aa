package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"restaurant-pos/internal/notsub"
	"restaurant-pos/internal/order"
	"restaurant-pos/internal/xpkg/logger"

	xerrors "restaurant-pos/internal/xpkg/errors"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Extract mode from arguments
	var mode string
	var serviceArgs []string

	for i := 1; i < len(os.Args); i++ {
		arg := os.Args[i]
		if strings.HasPrefix(arg, "--mode=") {
			mode = strings.TrimPrefix(arg, "--mode=")
		} else if arg == "--mode" && i+1 < len(os.Args) {
			mode = os.Args[i+1]
			i++ // skip the next argument
		} else {
			serviceArgs = append(serviceArgs, arg)
		}
	}

	if mode == "" {
		fmt.Println(xerrors.ErrModeFlag)
		printUsage()
		os.Exit(1)
	}

	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	mylog := logger.New(logger.ServiceName(mode), level, os.Stdout)
	ctx := context.Background()

	var err error
	switch mode {
	case "order-service":
		err = order.Execute(ctx, mylog, serviceArgs)
	case "notification-subscriber":
		err = notsub.Execute(ctx, mylog, serviceArgs)
	default:
		fmt.Printf("%s: %s\n", xerrors.ErrUnknownService, mode)
		printUsage()
		os.Exit(1)
	}

	if errors.Is(err, xerrors.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: restaurant-pos --mode=<service-mode> [service-specific-flags]")
	fmt.Println("Available modes:")
	fmt.Println("  order-service --config-path=config.yaml --port=3000 --max-concurrent=50")
	fmt.Println("  notification-subscriber --config-path=config.yaml --max-concurrent=10")
}
