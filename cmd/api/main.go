package main

import (
	"flag"
	"os"

	"github.com/yigit/coursereg/internal/pkg/logger" // Still needed for initial error logging
	"github.com/yigit/coursereg/internal/server"
)

// @title Course Registration API
// @version 1.0
// @description Course browsing and registration with live enrollment counts

// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token identifying the student

func main() {
	configPath := flag.String("config", "", "path to the YAML config file (defaults to $CONFIG_PATH or configs/config.yaml)")
	flag.Parse()

	srv, err := server.NewServer(*configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize server")
		os.Exit(1)
	}

	// Run the server (this blocks until shutdown signal)
	if err := srv.Run(); err != nil {
		logger.Error().Err(err).Msg("Server execution failed or shutdown encountered errors")
		os.Exit(1)
	}

	logger.Info().Msg("Application finished gracefully.")
}
