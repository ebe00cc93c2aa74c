package main

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jameshendricken/iot-dashboard/internal/api"
	"github.com/jameshendricken/iot-dashboard/internal/config"
	"github.com/jameshendricken/iot-dashboard/internal/repository"
	"github.com/jameshendricken/iot-dashboard/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Load configuration
	cfg := config.Load()

	// Set up database connection
	db, err := config.SetupDatabase(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up database")
	}
	defer db.Close()

	// Create repository
	repo := repository.NewPostgresRepository(db)

	// Create service
	svc := service.NewDefaultService(repo)

	// Create API handler
	handler := api.NewHandler(svc)

	// Set up Gin router. Identity resolution runs before every handler.
	router := gin.New()
	router.Use(
		gin.Recovery(),
		api.RequestIDMiddleware(),
		api.RequestLogger(log.Logger),
		api.IdentityMiddleware(svc),
	)

	// Set up routes
	handler.SetupRoutes(router)

	// Start server
	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info().Str("addr", serverAddr).Msg("server listening")
	if err := http.ListenAndServe(serverAddr, router); err != nil {
		log.Fatal().Err(err).Msg("server exit")
	}
}
