// Package config loads battle configuration from the environment.
package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	TextProviderOpenAI = "openai"
	TextProviderGroq   = "groq"

	SpeechProviderDeepgram = "deepgram"
	SpeechProviderOpenAI   = "openai"
	SpeechProviderNone     = "none"
)

type Config struct {
	OpenAIAPIKey   string `env:"OPENAI_API_KEY"`
	GroqAPIKey     string `env:"GROQ_API_KEY"`
	DeepgramAPIKey string `env:"DEEPGRAM_API_KEY"`

	TextProvider   string `env:"BATTLE_TEXT_PROVIDER"   envDefault:"openai"`
	SpeechProvider string `env:"BATTLE_SPEECH_PROVIDER" envDefault:"deepgram"`
	OpenAIModel    string `env:"BATTLE_OPENAI_MODEL"`
	GroqModel      string `env:"BATTLE_GROQ_MODEL"`
	JudgeModel     string `env:"BATTLE_JUDGE_MODEL"`

	TotalTurns      int           `env:"BATTLE_TOTAL_TURNS"       envDefault:"10"`
	MaxTokens       int           `env:"BATTLE_MAX_TOKENS"        envDefault:"400"`
	PlaybackTimeout time.Duration `env:"BATTLE_PLAYBACK_TIMEOUT"  envDefault:"0s"`
	VerseAnalysis   bool          `env:"BATTLE_VERSE_ANALYSIS"    envDefault:"true"`

	// Voices left empty fall back to the speech provider's defaults.
	FirstVoice     string `env:"BATTLE_FIRST_VOICE"`
	SecondVoice    string `env:"BATTLE_SECOND_VOICE"`
	AnnouncerVoice string `env:"BATTLE_ANNOUNCER_VOICE"`

	// RecordsPath is the SQLite database holding win/loss records. Empty
	// keeps records in memory.
	RecordsPath  string `env:"BATTLE_RECORDS_PATH"`
	OTelEndpoint string `env:"BATTLE_OTEL_ENDPOINT"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !slices.Contains([]string{TextProviderOpenAI, TextProviderGroq}, c.TextProvider) {
		return fmt.Errorf("unknown text provider %q", c.TextProvider)
	}
	if !slices.Contains([]string{SpeechProviderDeepgram, SpeechProviderOpenAI, SpeechProviderNone}, c.SpeechProvider) {
		return fmt.Errorf("unknown speech provider %q", c.SpeechProvider)
	}
	if c.TotalTurns <= 0 {
		return fmt.Errorf("total turns must be positive, got %d", c.TotalTurns)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens)
	}
	if c.PlaybackTimeout < 0 {
		return fmt.Errorf("playback timeout must not be negative, got %s", c.PlaybackTimeout)
	}
	return nil
}
