package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/koscakluka/ema-battle/core/audio"
	"github.com/koscakluka/ema-battle/core/texttospeech"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultURL   = "https://api.openai.com/v1/audio/speech"
	defaultModel = "gpt-4o-mini-tts"
	defaultVoice = "alloy"

	// pcm responses are always 24kHz 16-bit mono.
	pcmSampleRate = 24000
)

// Synthesizer speaks text through the OpenAI speech endpoint and returns raw
// PCM audio.
type Synthesizer struct {
	apiKey  string
	url     string
	model   string
	client  *http.Client
	options texttospeech.SynthesisOptions
}

type SynthesizerOption func(*Synthesizer)

func WithURL(url string) SynthesizerOption {
	return func(s *Synthesizer) { s.url = url }
}

func WithModel(model string) SynthesizerOption {
	return func(s *Synthesizer) {
		if model != "" {
			s.model = model
		}
	}
}

func NewSynthesizer(apiKey string, opts ...SynthesizerOption) *Synthesizer {
	synthesizer := &Synthesizer{
		apiKey: apiKey,
		url:    defaultURL,
		model:  defaultModel,
		client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		options: texttospeech.SynthesisOptions{
			EncodingInfo: audio.EncodingInfo{SampleRate: pcmSampleRate, Format: audio.EncodingLinear16},
		},
	}
	for _, opt := range opts {
		opt(synthesizer)
	}
	return synthesizer
}

// EncodingInfo describes the audio returned by SynthesizeSpeech.
func (s *Synthesizer) EncodingInfo() audio.EncodingInfo {
	return s.options.EncodingInfo
}

func (s *Synthesizer) SynthesizeSpeech(ctx context.Context, text, voiceID string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()

	if s == nil || s.apiKey == "" {
		return nil, texttospeech.ErrNotConfigured
	}

	voice := strings.TrimSpace(voiceID)
	if voice == "" {
		voice = defaultVoice
	}
	span.SetAttributes(
		attribute.String("request.model", s.model),
		attribute.String("request.voice", voice),
		attribute.Int("request.text_length", len(text)),
	)

	audio, err := s.synthesize(ctx, text, voice)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("response.audio_bytes", len(audio)))
	return audio, nil
}

func (s *Synthesizer) synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	body, err := json.Marshal(speechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: "pcm",
	})
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("openai rejected credentials: %w", texttospeech.ErrNotConfigured)
	}
	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("non-OK HTTP status: %s: %s", resp.Status, strings.TrimSpace(string(errorBody)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	return audio, nil
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}
