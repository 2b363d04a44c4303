package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/keshucs12345/callsim/internal/audio"
)

const (
	// DeepgramSpeakURL is the Deepgram text-to-speech endpoint.
	DeepgramSpeakURL = "https://api.deepgram.com/v1/speak"
	deepgramRate     = audio.SampleRate
)

var deepgramVoices = []Voice{
	{Name: "aura-asteria-en", Lang: "en-US", Gender: "female", Default: true},
	{Name: "aura-luna-en", Lang: "en-US", Gender: "female"},
	{Name: "aura-stella-en", Lang: "en-US", Gender: "female"},
	{Name: "aura-athena-en", Lang: "en-GB", Gender: "female"},
	{Name: "aura-hera-en", Lang: "en-US", Gender: "female"},
	{Name: "aura-orion-en", Lang: "en-US", Gender: "male"},
	{Name: "aura-arcas-en", Lang: "en-US", Gender: "male"},
	{Name: "aura-perseus-en", Lang: "en-US", Gender: "male"},
	{Name: "aura-angus-en", Lang: "en-IE", Gender: "male"},
	{Name: "aura-helios-en", Lang: "en-GB", Gender: "male"},
}

// DeepgramSynthesizer speaks through Deepgram's Aura voices.
type DeepgramSynthesizer struct {
	apiKey   string
	endpoint string
	client   *http.Client
	logger   *slog.Logger
	*player
}

// NewDeepgramSynthesizer returns a synthesizer that plays Deepgram speech
// on out. An empty endpoint selects DeepgramSpeakURL.
func NewDeepgramSynthesizer(apiKey, endpoint string, out audio.Output, logger *slog.Logger, opts ...SynthOption) *DeepgramSynthesizer {
	if endpoint == "" {
		endpoint = DeepgramSpeakURL
	}
	return &DeepgramSynthesizer{
		apiKey:   apiKey,
		endpoint: endpoint,
		client:   &http.Client{},
		logger:   logger.With("subsystem", "tts", "backend", "deepgram"),
		player:   newPlayer(out, opts...),
	}
}

type deepgramSpeakPayload struct {
	Text string `json:"text"`
}

func (s *DeepgramSynthesizer) Voices() []Voice { return deepgramVoices }

// Speak requests linear16 audio for text and plays it. Deepgram has no
// speed control, so only the pitch multiplier is applied.
func (s *DeepgramSynthesizer) Speak(ctx context.Context, text string, p Params) error {
	model := p.Voice.Name
	if model == "" {
		model = deepgramVoices[0].Name
	}
	body, err := json.Marshal(deepgramSpeakPayload{Text: text})
	if err != nil {
		return err
	}

	q := url.Values{}
	q.Set("model", model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(deepgramRate))
	q.Set("container", "none")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Token "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("deepgram speak: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("deepgram speak: status %d: %s", resp.StatusCode, string(b))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read deepgram speech: %w", err)
	}
	s.logger.Debug("speech received", "model", model, "bytes", len(data))
	return s.play(ctx, audio.BytesToPCM16(data), deepgramRate, p.Pitch)
}

func (s *DeepgramSynthesizer) Stop() { s.stop() }
