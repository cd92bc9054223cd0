package texttospeech

import (
	"errors"

	"github.com/koscakluka/ema-battle/core/audio"
)

// ErrNotConfigured is returned by synthesizers that are missing credentials
// or were never set up. Callers can treat it like any other synthesis
// failure, but it is not worth retrying.
var ErrNotConfigured = errors.New("speech synthesis not configured")

type SynthesisOptions struct {
	EncodingInfo audio.EncodingInfo
	// Model overrides the provider's default speech model when set.
	Model string
}

type SynthesisOption func(*SynthesisOptions)

func DefaultSynthesisOptions() SynthesisOptions {
	return SynthesisOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SynthesisOption {
	return func(o *SynthesisOptions) {
		if encodingInfo.IsZero() {
			return
		}

		o.EncodingInfo = encodingInfo
	}
}

func WithModel(model string) SynthesisOption {
	return func(o *SynthesisOptions) {
		if model != "" {
			o.Model = model
		}
	}
}
