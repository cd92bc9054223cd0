package openai

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/koscakluka/ema-battle/core/texttospeech/openai"

var tracer = otel.Tracer(scopeName)
