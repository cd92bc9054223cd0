package main

import (
	"context"
	"fmt"

	orchestration "github.com/koscakluka/ema-battle/core"
	"github.com/koscakluka/ema-battle/core/judging"
	"github.com/koscakluka/ema-battle/core/llms/groq"
	"github.com/koscakluka/ema-battle/core/llms/openai"
	"github.com/koscakluka/ema-battle/core/records"
	"github.com/koscakluka/ema-battle/core/records/sqlite"
	"github.com/koscakluka/ema-battle/core/texttospeech/deepgram"
	openaitts "github.com/koscakluka/ema-battle/core/texttospeech/openai"
	"github.com/koscakluka/ema-battle/internal/config"
)

// providers holds the collaborators shared by every scope of a process.
type providers struct {
	text    orchestration.TextGenerator
	speech  orchestration.SpeechSynthesizer
	judge   orchestration.Judge
	records records.Store

	closeRecords func() error
}

func newProviders(cfg config.Config) (*providers, error) {
	p := &providers{closeRecords: func() error { return nil }}

	switch cfg.TextProvider {
	case config.TextProviderGroq:
		p.text = groq.NewClient(cfg.GroqAPIKey, groq.WithModel(cfg.GroqModel))
	default:
		p.text = openai.NewClient(cfg.OpenAIAPIKey, openai.WithModel(cfg.OpenAIModel))
	}

	switch cfg.SpeechProvider {
	case config.SpeechProviderDeepgram:
		p.speech = deepgram.NewClient(cfg.DeepgramAPIKey)
	case config.SpeechProviderOpenAI:
		p.speech = openaitts.NewSynthesizer(cfg.OpenAIAPIKey)
	}

	p.judge = judging.NewLLMJudge(groq.NewClient(cfg.GroqAPIKey, groq.WithModel(cfg.JudgeModel)))

	if cfg.RecordsPath == "" {
		p.records = records.NewMemoryStore()
		return p, nil
	}
	store, err := sqlite.Open(cfg.RecordsPath)
	if err != nil {
		return nil, fmt.Errorf("open records: %w", err)
	}
	p.records = store
	p.closeRecords = store.Close
	return p, nil
}

// scope hands out the shared collaborators. Nothing is released per turn;
// the record store lives until Close.
func (p *providers) scope(context.Context) (*orchestration.Scope, error) {
	return &orchestration.Scope{
		Text:    p.text,
		Speech:  p.speech,
		Judge:   p.judge,
		Records: p.records,
	}, nil
}

func (p *providers) Close() error {
	return p.closeRecords()
}

func voicesFor(cfg config.Config) (first, second, announcer string) {
	first, second, announcer = cfg.FirstVoice, cfg.SecondVoice, cfg.AnnouncerVoice

	var defaults [3]string
	switch cfg.SpeechProvider {
	case config.SpeechProviderDeepgram:
		defaults = [3]string{string(deepgram.VoiceOrion), string(deepgram.VoiceAndromeda), string(deepgram.VoiceZeus)}
	case config.SpeechProviderOpenAI:
		defaults = [3]string{"onyx", "nova", "fable"}
	}

	if first == "" {
		first = defaults[0]
	}
	if second == "" {
		second = defaults[1]
	}
	if announcer == "" {
		announcer = defaults[2]
	}
	return first, second, announcer
}
