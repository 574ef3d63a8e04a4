package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	libconfig "github.com/FilipKaczor/iot-project-backend/backend/libs/config"
	"github.com/FilipKaczor/iot-project-backend/backend/libs/logging"
	app "github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/app"
	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/config"
)

func main() {
	flagSet := pflag.NewFlagSet("brewery-service", pflag.ContinueOnError)
	configPath := flagSet.String("config", os.Getenv("CONFIG_FILE"), "path to the YAML configuration file")
	envFile := flagSet.String("env-file", ".env", "dotenv file exported before reading configuration")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := libconfig.LoadDotEnv(*envFile); err != nil {
		panic(err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger("brewery-service")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("application stopped with error", zap.Error(err))
	}
}
