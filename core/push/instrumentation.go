package push

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/koscakluka/ema-battle/core/push"

var logger = otelslog.NewLogger(scopeName)
