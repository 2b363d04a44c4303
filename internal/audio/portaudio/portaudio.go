//go:build !android
// +build !android

// Package portaudio plays the audio mixer through the default output device.
package portaudio

import (
	"context"
	"fmt"
	"log/slog"

	pa "github.com/gordonklaus/portaudio"

	"github.com/keshucs12345/callsim/internal/audio"
)

const (
	channels        = 1
	framesPerBuffer = 1024

	maxWriteFailures = 50
)

// Init initializes PortAudio. Call Terminate when done.
func Init(logger *slog.Logger) error {
	logger.Info("initializing portaudio")
	return pa.Initialize()
}

// Terminate releases PortAudio.
func Terminate(logger *slog.Logger) {
	logger.Info("terminating portaudio")
	if err := pa.Terminate(); err != nil {
		logger.Warn("error terminating portaudio", "error", err)
	}
}

// Output renders a Mixer to the default output device.
type Output struct {
	*audio.Mixer

	stream *pa.Stream
	buffer []int16
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// Open opens the default output stream and starts rendering. Init must
// have been called.
func Open(logger *slog.Logger) (*Output, error) {
	o := &Output{
		Mixer:  audio.NewMixer(audio.SampleRate),
		buffer: make([]int16, framesPerBuffer),
		logger: logger.With("subsystem", "audio"),
		done:   make(chan struct{}),
	}

	stream, err := pa.OpenDefaultStream(0, channels, audio.SampleRate, len(o.buffer), &o.buffer)
	if err != nil {
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("start output stream: %w", err)
	}
	o.stream = stream

	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	go o.run(ctx)

	o.logger.Info("output stream started", "sample_rate", audio.SampleRate, "frames_per_buffer", framesPerBuffer)
	return o, nil
}

// run feeds the device until ctx is done or writes keep failing. Once it
// returns nothing renders the mixer, so the mixer is closed to release
// every voice waiting on it.
func (o *Output) run(ctx context.Context) {
	defer close(o.done)
	defer o.Mixer.Close()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		o.Render(o.buffer)
		if err := o.stream.Write(); err != nil {
			// Underflows after a scheduling hiccup are transient.
			failures++
			o.logger.Debug("output write error", "error", err, "consecutive", failures)
			if failures >= maxWriteFailures {
				o.logger.Warn("output stream failing, stopping playback", "error", err)
				return
			}
			continue
		}
		failures = 0
	}
}

// Close stops rendering and closes the device stream.
func (o *Output) Close() error {
	o.cancel()
	<-o.done
	_ = o.stream.Stop()
	if err := o.stream.Close(); err != nil {
		return fmt.Errorf("close output stream: %w", err)
	}
	o.logger.Info("output stream closed")
	return nil
}
