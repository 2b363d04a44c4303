// Package config loads runtime settings for callsim.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration.
// Precedence: CLI flags > env vars (including .env) > defaults.
type Config struct {
	LogLevel  string
	LogFormat string
	LogOutput string // stdout, stderr or a file path

	HTTPAddr string  // empty disables the HTTP surface
	APIRate  float64 // requests per second per client, 0 disables limiting

	TTS         string // openai, deepgram or silent
	OpenAIModel string
	Language    string
	NoAudio     bool

	ScenariosFile  string
	TargetDuration time.Duration

	// Provider credentials. These are only read from the environment.
	OpenAIAPIKey   string
	DeepgramAPIKey string
}

const (
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultLogOutput      = "stderr"
	defaultAPIRate        = 5
	defaultTTS            = TTSOpenAI
	defaultOpenAIModel    = "gpt-4o"
	defaultLanguage       = "en"
	defaultTargetDuration = 30 * time.Second
)

// Speech backends.
const (
	TTSOpenAI   = "openai"
	TTSDeepgram = "deepgram"
	TTSSilent   = "silent"
)

// envPrefix is the prefix for all callsim environment variables.
const envPrefix = "CALLSIM_"

// DotEnvFile is loaded into the environment, if present, before flags and
// env vars are read. Variables already set are not overridden.
var DotEnvFile = ".env"

// Load parses configuration from args (without the program name) and the
// environment.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", DotEnvFile, err)
	}

	cfg := &Config{}
	fset := flag.NewFlagSet("callsim", flag.ContinueOnError)

	fset.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fset.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fset.StringVar(&cfg.LogOutput, "log-output", defaultLogOutput, "log destination (stdout, stderr or a file path)")
	fset.StringVar(&cfg.HTTPAddr, "http-addr", "", "listen address for the HTTP control surface (disabled if empty)")
	fset.Float64Var(&cfg.APIRate, "api-rate", defaultAPIRate, "HTTP requests per second allowed per client (0 disables limiting)")
	fset.StringVar(&cfg.TTS, "tts", defaultTTS, "speech backend (openai, deepgram, silent)")
	fset.StringVar(&cfg.OpenAIModel, "openai-model", defaultOpenAIModel, "chat model used to write call dialogue")
	fset.StringVar(&cfg.Language, "language", defaultLanguage, "preferred voice language")
	fset.BoolVar(&cfg.NoAudio, "no-audio", false, "do not open an audio device")
	fset.StringVar(&cfg.ScenariosFile, "scenarios-file", "", "YAML file with extra scenarios")
	fset.DurationVar(&cfg.TargetDuration, "target-duration", defaultTargetDuration, "target spoken length of a generated call")

	if err := fset.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}
	if err := applyEnvOverrides(fset); err != nil {
		return nil, err
	}

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.DeepgramAPIKey = os.Getenv("DEEPGRAM_API_KEY")

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// EnvVar returns the environment variable that sets flag name.
func EnvVar(name string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// applyEnvOverrides sets every flag not given on the command line from its
// env var.
func applyEnvOverrides(fset *flag.FlagSet) error {
	set := make(map[string]bool)
	fset.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	var err error
	fset.VisitAll(func(f *flag.Flag) {
		if err != nil || set[f.Name] {
			return
		}
		val, ok := os.LookupEnv(EnvVar(f.Name))
		if !ok || val == "" {
			return
		}
		if serr := fset.Set(f.Name, val); serr != nil {
			err = fmt.Errorf("%s: %w", EnvVar(f.Name), serr)
		}
	})
	return err
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	c.LogLevel = strings.ToLower(c.LogLevel)
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}

	c.LogFormat = strings.ToLower(c.LogFormat)
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}

	if c.LogOutput == "" {
		return errors.New("log-output must not be empty")
	}

	c.TTS = strings.ToLower(c.TTS)
	switch c.TTS {
	case TTSOpenAI, TTSDeepgram, TTSSilent:
	default:
		return fmt.Errorf("tts must be one of openai, deepgram, silent; got %q", c.TTS)
	}

	if c.APIRate < 0 {
		return fmt.Errorf("api-rate must not be negative, got %g", c.APIRate)
	}
	if c.TargetDuration <= 0 {
		return fmt.Errorf("target-duration must be positive, got %s", c.TargetDuration)
	}
	if c.Language == "" {
		return errors.New("language must not be empty")
	}
	return nil
}
