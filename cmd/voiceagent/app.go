package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"voice-trial-agent/internal/admin"
	"voice-trial-agent/internal/audio"
	"voice-trial-agent/internal/audit"
	"voice-trial-agent/internal/config"
	"voice-trial-agent/internal/credential"
	"voice-trial-agent/internal/identity/credstore"
	identityservice "voice-trial-agent/internal/identity/service"
	policydomain "voice-trial-agent/internal/policy/domain"
	"voice-trial-agent/internal/policy/engine"
	"voice-trial-agent/internal/realtime"
	"voice-trial-agent/internal/security"
	"voice-trial-agent/internal/storage"
	"voice-trial-agent/internal/telemetry"
	telemetryotel "voice-trial-agent/internal/telemetry/otel"
	"voice-trial-agent/internal/telemetry/producer"
	"voice-trial-agent/internal/ui"
	"voice-trial-agent/internal/voice"
)

// app holds the client's wired components for one command invocation.
type app struct {
	cfg      *config.Config
	storage  *storage.Storage
	creds    *credstore.Store
	engine   *engine.Engine
	auth     *identityservice.AuthService
	auditLog *audit.Logger
	term     *ui.Terminal

	providers *telemetryotel.Providers
	producer  *producer.KafkaProducer
	emitter   telemetry.EventEmitter
	metrics   *telemetryotel.SessionMetrics
}

// newApp opens the store, loads the identities file and wires the auth service and policy engine.
// Telemetry is optional: an empty OTLP endpoint and empty KAFKA_BROKERS leave it in-process.
func newApp(ctx context.Context, cfg *config.Config, out io.Writer) (*app, error) {
	st, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, storage: st, term: ui.NewTerminal(out, ui.DefaultTheme)}

	hasher := security.NewHasher(cfg.BcryptCost)
	identities, err := credstore.LoadFile(cfg.IdentitiesFile, hasher, cfg.IsProduction())
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("identities: %w", err)
	}
	a.creds = credstore.New(identities, st.KV, hasher)

	var evaluator engine.Evaluator
	if cfg.PolicyRegoFile != "" {
		opa, err := engine.LoadOPAEvaluator(cfg.PolicyRegoFile)
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("policy: %w", err)
		}
		evaluator = opa
	}
	policy := policydomain.Policy{
		InteractionLimit: cfg.UsageLimit,
		Window:           cfg.Window(),
		TokenLimit:       cfg.TokenLimit,
	}
	a.engine = engine.NewEngine(st.KV, a.creds, policy, evaluator)
	a.auditLog = audit.NewLogger(st.Audit, nil)
	a.auth = identityservice.NewAuthService(a.creds, a.engine, st.KV, a.auditLog)

	if err := a.setupTelemetry(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) setupTelemetry(ctx context.Context) error {
	providers, err := telemetryotel.NewProviders(ctx, a.cfg.OTLPEndpoint, a.cfg.ServiceName, a.cfg.OTLPInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	a.providers = providers

	metrics, err := telemetryotel.NewSessionMetrics(providers.MeterProvider)
	if err != nil {
		return fmt.Errorf("telemetry metrics: %w", err)
	}
	a.metrics = metrics

	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	p, err := producer.NewKafkaProducer(a.cfg.TelemetryKafkaBrokersList(), a.cfg.TelemetryKafkaTopic)
	if err != nil {
		return fmt.Errorf("telemetry kafka: %w", err)
	}
	if p != nil {
		a.producer = p
		emitters = append(emitters, p)
	}
	a.emitter = telemetry.Multi(emitters...)
	return nil
}

// adminGate returns the password gate for the administrative panel.
func (a *app) adminGate() *admin.Gate {
	return admin.NewGate(a.cfg.AdminPassword, a.creds, a.auth, a.storage.KV, a.auditLog)
}

// newController wires the realtime agent and the microphone into a voice controller. With playback set,
// the speaker is opened for assistant audio. The returned cleanup releases the audio devices.
func (a *app) newController(ctx context.Context, playback bool) (*voice.Controller, func(), error) {
	persona := realtime.DefaultPersona()
	if a.cfg.PersonaFile != "" {
		p, err := realtime.LoadPersona(a.cfg.PersonaFile)
		if err != nil {
			return nil, nil, fmt.Errorf("persona: %w", err)
		}
		persona = p
	}
	dialer := realtime.NewDialer(a.cfg.RealtimeURL, a.cfg.RealtimeModel, persona, a.cfg.AudioSampleRate)
	mic := audio.NewMicrophone(a.cfg.AudioSampleRate, a.cfg.AudioDevice)

	opts := voice.Options{
		Auth:          a.auth,
		Policy:        a.engine,
		Revoker:       a.creds,
		Fetcher:       credential.NewFetcher(a.cfg.CredentialProxyURL, a.cfg.ProxyClientToken),
		Connector:     dialerConnector{dialer},
		Microphone:    micAdapter{mic},
		Notifier:      a.term,
		Emitter:       a.emitter,
		Metrics:       a.metrics,
		Audit:         a.auditLog,
		CheckInterval: a.cfg.CheckInterval(),
	}
	speaker := audio.NewSpeaker(a.cfg.AudioSampleRate, "")
	if playback {
		if err := speaker.Start(); err != nil {
			log.Printf("voiceagent: speaker unavailable, assistant audio is muted: %v", err)
		} else {
			opts.Player = speaker
		}
	}

	ctl := voice.NewController(opts)
	a.auth.OnClearAll(func() { ctl.Stop(context.WithoutCancel(ctx)) })

	cleanup := func() {
		if err := ctl.Close(context.WithoutCancel(ctx)); err != nil {
			log.Printf("voiceagent: close controller: %v", err)
		}
		if opts.Player != nil {
			if err := speaker.Close(); err != nil {
				log.Printf("voiceagent: close speaker: %v", err)
			}
		}
		audio.Terminate()
	}
	return ctl, cleanup, nil
}

// close flushes telemetry and releases the store.
func (a *app) close(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetry.ShutdownDrainDuration)
	if err := telemetry.Drain(drainCtx); err != nil {
		log.Printf("voiceagent: %v", err)
	}
	cancel()
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			log.Printf("voiceagent: kafka producer close: %v", err)
		}
	}
	if a.providers != nil && a.providers.Shutdown != nil {
		if err := a.providers.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Printf("voiceagent: telemetry shutdown: %v", err)
		}
	}
	if err := a.storage.Close(); err != nil {
		log.Printf("voiceagent: storage close: %v", err)
	}
}
