package main

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/koscakluka/ema-battle/cmd/battle"

var logger = otelslog.NewLogger(scopeName)
