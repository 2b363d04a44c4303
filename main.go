//go:build !android
// +build !android

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sashabaranov/go-openai"

	"github.com/keshucs12345/callsim/internal/ambient"
	"github.com/keshucs12345/callsim/internal/api"
	"github.com/keshucs12345/callsim/internal/audio"
	"github.com/keshucs12345/callsim/internal/audio/portaudio"
	"github.com/keshucs12345/callsim/internal/call"
	"github.com/keshucs12345/callsim/internal/config"
	"github.com/keshucs12345/callsim/internal/dialogue"
	"github.com/keshucs12345/callsim/internal/events"
	"github.com/keshucs12345/callsim/internal/haptics"
	"github.com/keshucs12345/callsim/internal/logger"
	"github.com/keshucs12345/callsim/internal/metrics"
	"github.com/keshucs12345/callsim/internal/ring"
	"github.com/keshucs12345/callsim/internal/scenario"
	"github.com/keshucs12345/callsim/internal/schedule"
	"github.com/keshucs12345/callsim/internal/speech"
)

// silentWordsPerSecond paces speech when no synthesizer is available.
const silentWordsPerSecond = 2.5

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "callsim:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	lg, err := logger.New(cfg)
	if err != nil {
		return err
	}
	defer lg.Close()
	log := lg.Logger
	slog.SetDefault(log)

	catalog := scenario.NewCatalog()
	if cfg.ScenariosFile != "" {
		n, err := catalog.LoadFile(cfg.ScenariosFile)
		if err != nil {
			return err
		}
		log.Info("scenarios loaded", "file", cfg.ScenariosFile, "count", n)
	}

	out, closeAudio := openOutput(cfg, log)
	defer closeAudio()

	hub := events.NewHub(log)
	defer hub.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	hub.Subscribe(m.Observe)

	pulses := haptics.Multi(log, haptics.NewLog(log), hub.Haptics())
	gen, client := newGenerator(cfg, log)
	synth := newSynthesizer(cfg, client, out, log)

	orch := call.New(call.Config{
		Generator:      gen,
		Haptics:        pulses,
		TargetDuration: cfg.TargetDuration,
		NewRinger: func() call.Ringer {
			return ring.New(out, pulses, log)
		},
		NewAmbience: func() call.Ambience {
			return ambient.NewEngine(out, log, ambient.WithObserver(func(env ambient.Environment, event string) {
				m.AmbientEvent(string(env), event)
			}))
		},
		NewSpeaker: func() call.Speaker {
			return speech.NewSequencer(synth, log, speech.WithLanguage(cfg.Language))
		},
	}, hub, log)
	defer orch.Close()

	registry := schedule.NewRegistry(func(sc scenario.Scenario) error {
		_, err := orch.Start(sc)
		return err
	}, log)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := registry.Stop(ctx); err != nil {
			log.Warn("schedule did not stop cleanly", "error", err)
		}
	}()

	reg.MustRegister(metrics.NewCollector(orch, registry, time.Now()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.HTTPAddr != "" {
		srv := api.NewServer(api.Deps{
			Calls:     orch,
			Schedule:  registry,
			Catalog:   catalog,
			Events:    hub,
			Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			RateLimit: cfg.APIRate,
			Logger:    log,
		})
		defer srv.Close()
		httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			log.Info("http server listening", "addr", cfg.HTTPAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server failed", "error", err)
				stop()
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpSrv.Shutdown(ctx); err != nil {
				log.Warn("http server shutdown", "error", err)
			}
		}()
	}

	con := newConsole(os.Stdout, orch, registry, catalog)
	unsubscribe := hub.Subscribe(con.handleEvent, events.StateChanged, events.LineStarted, events.MissingCredential)
	defer unsubscribe()

	con.run(ctx, os.Stdin)
	log.Info("shutting down")
	return nil
}

// openOutput opens the default audio device, falling back to silence when
// there is none or no-audio is set.
func openOutput(cfg *config.Config, log *slog.Logger) (audio.Output, func()) {
	if cfg.NoAudio {
		log.Info("audio disabled")
		return audio.Discard, func() {}
	}
	if err := portaudio.Init(log); err != nil {
		log.Warn("no audio device, continuing silently", "error", err)
		return audio.Discard, func() {}
	}
	pa, err := portaudio.Open(log)
	if err != nil {
		log.Warn("no audio output, continuing silently", "error", err)
		portaudio.Terminate(log)
		return audio.Discard, func() {}
	}
	return pa, func() {
		if err := pa.Close(); err != nil {
			log.Warn("closing audio output", "error", err)
		}
		portaudio.Terminate(log)
	}
}

// newGenerator returns the dialogue generator behind a circuit breaker and
// the OpenAI client it uses.
func newGenerator(cfg *config.Config, log *slog.Logger) (dialogue.Generator, *openai.Client) {
	g := dialogue.NewOpenAIGenerator(cfg.OpenAIAPIKey, log, dialogue.WithModel(cfg.OpenAIModel))
	if !dialogue.ValidKey(cfg.OpenAIAPIKey) {
		log.Warn("OPENAI_API_KEY is not set, answered calls will report a missing credential")
	}
	return dialogue.NewBreaker(g, dialogue.BreakerConfig{}, log), g.Client()
}

func newSynthesizer(cfg *config.Config, client *openai.Client, out audio.Output, log *slog.Logger) speech.Synthesizer {
	switch cfg.TTS {
	case config.TTSOpenAI:
		if dialogue.ValidKey(cfg.OpenAIAPIKey) {
			return speech.NewOpenAISynthesizer(client, out, log)
		}
		log.Warn("OpenAI speech needs OPENAI_API_KEY, speaking silently")
	case config.TTSDeepgram:
		if cfg.DeepgramAPIKey != "" {
			return speech.NewDeepgramSynthesizer(cfg.DeepgramAPIKey, "", out, log)
		}
		log.Warn("Deepgram speech needs DEEPGRAM_API_KEY, speaking silently")
	}
	return speech.Silent{WordsPerSecond: silentWordsPerSecond}
}
