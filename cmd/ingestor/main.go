package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jameshendricken/iot-dashboard/internal/config"
	"github.com/jameshendricken/iot-dashboard/internal/repository"
	"github.com/jameshendricken/iot-dashboard/internal/service"
)

// The ingestor subscribes to the device readings topic and feeds payloads
// through the same ingest path as the HTTP endpoint.
func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg := config.Load()

	db, err := config.SetupDatabase(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up database")
	}
	defer db.Close()

	repo := repository.NewPostgresRepository(db)
	svc := service.NewDefaultService(repo)

	opts := mqtt.NewClientOptions().AddBroker(cfg.MQTT.Broker)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatal().Err(token.Error()).Msg("mqtt connect failed")
	}
	defer client.Disconnect(250)

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		if err := svc.IngestPayload(context.Background(), msg.Payload()); err != nil {
			log.Error().Err(err).Str("topic", msg.Topic()).Msg("ingest failed")
		}
	}

	if token := client.Subscribe(cfg.MQTT.Topic, 0, handler); token.Wait() && token.Error() != nil {
		log.Fatal().Err(token.Error()).Msg("subscribe failed")
	}

	log.Info().Str("broker", cfg.MQTT.Broker).Str("topic", cfg.MQTT.Topic).Msg("ingestor running")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("ingestor stopping")
}
