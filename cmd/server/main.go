// RemixHub API server.
//
// Copies the full file tree of one GitHub repository into another via the
// Git Data API, streaming progress to the client, with a credit-based PIX
// store on the side.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/jardiel79162-commits/remixhub/internal/server"
)

func main() {
	// .env is optional — in production the variables come from the platform.
	if err := godotenv.Load(); err == nil {
		fmt.Println("Loaded configuration from .env file")
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// loadConfig reads configuration from the environment.
//
// JWT_SECRET and MERCADOPAGO_ACCESS_TOKEN are required; PORT and DB_PATH
// have sensible defaults for local development.
func loadConfig() (server.Config, error) {
	cfg := server.Config{
		Port:             8080,
		DBPath:           "remixhub.db",
		JWTSecret:        os.Getenv("JWT_SECRET"),
		MercadoPagoToken: os.Getenv("MERCADOPAGO_ACCESS_TOKEN"),
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return server.Config{}, fmt.Errorf("invalid PORT %q", portStr)
		}
		cfg.Port = port
	}

	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}

	if cfg.JWTSecret == "" {
		return server.Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.MercadoPagoToken == "" {
		return server.Config{}, fmt.Errorf("MERCADOPAGO_ACCESS_TOKEN is required")
	}

	return cfg, nil
}
