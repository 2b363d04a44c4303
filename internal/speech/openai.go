package speech

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/keshucs12345/callsim/internal/audio"
)

// openAIPCMRate is the sample rate of OpenAI's raw pcm response format.
const openAIPCMRate = 24000

var openAIVoices = []Voice{
	{Name: string(openai.VoiceAlloy), Lang: "en", Gender: "neutral"},
	{Name: string(openai.VoiceEcho), Lang: "en", Gender: "male"},
	{Name: string(openai.VoiceFable), Lang: "en", Gender: "male"},
	{Name: string(openai.VoiceOnyx), Lang: "en", Gender: "male"},
	{Name: string(openai.VoiceNova), Lang: "en", Gender: "female"},
	{Name: string(openai.VoiceShimmer), Lang: "en", Gender: "female", Default: true},
}

// OpenAISynthesizer speaks through the OpenAI speech endpoint.
type OpenAISynthesizer struct {
	client *openai.Client
	model  openai.SpeechModel
	logger *slog.Logger
	*player
}

// NewOpenAISynthesizer returns a synthesizer that plays OpenAI speech on out.
func NewOpenAISynthesizer(client *openai.Client, out audio.Output, logger *slog.Logger, opts ...SynthOption) *OpenAISynthesizer {
	return &OpenAISynthesizer{
		client: client,
		model:  openai.TTSModel1,
		logger: logger.With("subsystem", "tts", "backend", "openai"),
		player: newPlayer(out, opts...),
	}
}

func (s *OpenAISynthesizer) Voices() []Voice { return openAIVoices }

// Speak requests raw PCM for text and plays it. The rate multiplier maps to
// the endpoint's speed setting.
func (s *OpenAISynthesizer) Speak(ctx context.Context, text string, p Params) error {
	voice := openai.SpeechVoice(p.Voice.Name)
	if voice == "" {
		voice = openai.VoiceShimmer
	}
	speed := p.Rate
	if speed <= 0 {
		speed = 1
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatPcm,
		Speed:          speed,
	})
	if err != nil {
		return fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return fmt.Errorf("read openai speech: %w", err)
	}
	s.logger.Debug("speech received", "voice", voice, "bytes", len(data))
	return s.play(ctx, audio.BytesToPCM16(data), openAIPCMRate, p.Pitch)
}

func (s *OpenAISynthesizer) Stop() { s.stop() }
