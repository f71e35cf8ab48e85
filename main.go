package main

import (
	"context"
	"os"
	"time"

	"github.com/llm-sentinel/sentinel/cmd"
	"github.com/llm-sentinel/sentinel/config"
	"github.com/llm-sentinel/sentinel/internal/alert"
	"github.com/llm-sentinel/sentinel/internal/backoff"
	"github.com/llm-sentinel/sentinel/internal/baseline"
	"github.com/llm-sentinel/sentinel/internal/detect"
	"github.com/llm-sentinel/sentinel/internal/ingest"
	"github.com/llm-sentinel/sentinel/internal/sink"
	"github.com/llm-sentinel/sentinel/internal/telemetry"
	"github.com/llm-sentinel/sentinel/logger"
	"github.com/llm-sentinel/sentinel/metrics"
	"github.com/llm-sentinel/sentinel/server"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		panic(err)
	}

	logger.InitLogger(cfg.LogLevel, os.Stdout)

	reg := metrics.InitMetrics()

	baselineCfg := baseline.DefaultConfig()
	baselineCfg.WindowSize = cfg.Baseline.WindowSize
	baselineCfg.WarmupMinSamples = cfg.Baseline.WarmupMinSamples
	baselineCfg.MaxKeys = cfg.Baseline.MaxKeys
	store := baseline.New(baselineCfg)

	detectorCfg := detect.Config{
		ZScore: detect.ZScoreConfig{Enabled: cfg.Detectors.ZScore.Enabled, K: cfg.Detectors.ZScore.K},
		IQR:    detect.IQRConfig{Enabled: cfg.Detectors.IQR.Enabled, M: cfg.Detectors.IQR.M},
		MAD:    detect.MADConfig{Enabled: cfg.Detectors.MAD.Enabled, K: cfg.Detectors.MAD.K},
		CUSUM: detect.CUSUMConfig{
			Enabled:     cfg.Detectors.CUSUM.Enabled,
			H:           cfg.Detectors.CUSUM.H,
			SlackFactor: cfg.Detectors.CUSUM.SlackFactor,
		},
	}
	detectors := detect.NewSet(detectorCfg, store)

	callTimeout := 5 * time.Second
	storageSink := sink.NewRetrying(sink.NewStorage(cfg.Sinks.StorageURL, callTimeout), backoff.SinkDefault(), cfg.Sinks.MaxRetryAttempts, callTimeout)
	transportSink := sink.NewRetrying(sink.NewTransport(cfg.Sinks.AlertTransportURL, []byte(cfg.Sinks.TransportSecret), callTimeout), backoff.SinkDefault(), cfg.Sinks.MaxRetryAttempts, callTimeout)
	countersSink := sink.NewCounters()

	chaosStorage := sink.NewChaos(storageSink)
	chaosTransport := sink.NewChaos(transportSink)
	chaosCounters := sink.NewChaos(countersSink)

	dedup := alert.NewDedup(time.Duration(cfg.Dedup.WindowSeconds) * time.Second)
	alertLog := alert.NewLog(10000)
	emitter := alert.NewEmitter(dedup, alertLog, chaosStorage, chaosTransport, chaosCounters)

	validator := telemetry.NewValidator(telemetry.ValidatorConfig{
		FutureSkew:       time.Duration(cfg.Baseline.FutureSkewSeconds) * time.Second,
		RetentionHorizon: telemetry.DefaultValidatorConfig().RetentionHorizon,
	})
	sanitizer := telemetry.NewSanitizer(cfg.Sanitization.ExtraKeyPrefixes)

	pipeline := ingest.New(ingest.Config{
		QueueCapacity: cfg.Pipeline.QueueCapacity,
		Workers:       cfg.Pipeline.Workers,
		Backpressure:  ingest.BackpressurePolicy(cfg.Pipeline.Backpressure),
		DecodeFormat:  telemetry.Format(cfg.Source.DecodeFormat),
	}, validator, sanitizer, store, detectors, emitter)

	// records is the hand-off channel a real broker consumer would feed;
	// no broker client library is wired (none appears anywhere in the
	// example pack), so this ships as the production extension point. The
	// admin/simulate endpoints call pipeline.Submit/EvaluateSample
	// directly, bypassing this channel.
	records := make(chan []byte)
	source := ingest.NewChannelSource(records)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipeline.Start(ctx)
	go func() {
		if err := source.Run(ctx, pipeline.Submit); err != nil {
			log.Error().Err(err).Msg("source adapter exited")
		}
	}()

	ready := func() bool { return true }

	deps := &server.Deps{
		Store:    store,
		Pipeline: pipeline,
		Emitter:  emitter,
		Sinks: map[string]*sink.Chaos{
			"storage":   chaosStorage,
			"transport": chaosTransport,
			"counters":  chaosCounters,
		},
		Ready: ready,
	}

	log.Info().
		Str("version", cmd.Version).
		Int("port", cfg.Port).
		Msg("starting llm-sentinel")

	srv := server.New(cfg, os.Stdout, reg, deps)
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}

	close(records)
	pipeline.Wait()
}
