// server is the credential proxy: GET /api mints a short-lived realtime credential.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voice-trial-agent/internal/audit"
	"voice-trial-agent/internal/config"
	"voice-trial-agent/internal/credential"
	"voice-trial-agent/internal/server"
	"voice-trial-agent/internal/server/middleware"
	"voice-trial-agent/internal/storage"
	"voice-trial-agent/internal/telemetry"
	telemetryotel "voice-trial-agent/internal/telemetry/otel"
	"voice-trial-agent/internal/telemetry/producer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.OpenAIAPIKey == "" {
		log.Printf("server: OPENAI_API_KEY is not set; /api will fail until it is")
	}

	ctx := context.Background()

	st, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer st.Close()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	kafkaProducer, err := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic)
	if err != nil {
		log.Fatalf("telemetry kafka: %v", err)
	}
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
	}

	handler := server.NewHandler(server.Deps{
		Issuer:       credential.NewIssuer(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.RealtimeModel, cfg.SecretTTL()),
		Emitter:      telemetry.Multi(emitters...),
		Audit:        audit.NewLogger(st.Audit, middleware.ClientIP),
		HealthPinger: st,
		ClientToken:  cfg.ProxyClientToken,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("credential proxy listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down credential proxy...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), telemetry.ShutdownDrainDuration)
	if err := telemetry.Drain(drainCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	drainCancel()
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Printf("kafka producer close: %v", err)
		}
	}
	if err := providers.Shutdown(context.Background()); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("credential proxy stopped")
}
