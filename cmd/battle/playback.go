package main

import (
	"context"
	"fmt"

	orchestration "github.com/koscakluka/ema-battle/core"
	"github.com/koscakluka/ema-battle/core/audio"
	"github.com/koscakluka/ema-battle/core/audio/miniaudio"
	"github.com/koscakluka/ema-battle/core/audio/portaudio"
	"github.com/koscakluka/ema-battle/core/events"
)

const (
	playerMiniaudio = "miniaudio"
	playerPortaudio = "portaudio"
	playerSilent    = "silent"
	// playerRemote plays nothing locally; push clients acknowledge playback.
	playerRemote = "remote"
)

func newPlayer(name string) (audio.Player, func() error, error) {
	noop := func() error { return nil }

	switch name {
	case playerMiniaudio:
		player, err := miniaudio.NewPlayer()
		if err != nil {
			return nil, noop, fmt.Errorf("open miniaudio player: %w", err)
		}
		return player, player.Close, nil
	case playerPortaudio:
		player, err := portaudio.NewPlayer()
		if err != nil {
			return nil, noop, fmt.Errorf("open portaudio player: %w", err)
		}
		return player, player.Close, nil
	case playerSilent:
		return audio.SilentPlayer{}, noop, nil
	case playerRemote:
		return nil, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown player %q", name)
	}
}

// playbackBridge plays the introduction and every turn on queue and
// acknowledges each turn once its audio has been played. Turns without
// audio are acknowledged straight away.
func playbackBridge(queue *audio.Queue, ack func()) orchestration.Handler {
	return func(event events.Event) error {
		switch event.Kind() {
		case events.KindSessionIntroduced:
			queue.Enqueue(event.Snapshot().CurrentTurnAudio, nil)
		case events.KindTurnReady:
			queue.Enqueue(event.Snapshot().CurrentTurnAudio, ack)
		case events.KindSessionReset:
			queue.Clear()
		}
		return nil
	}
}

func startQueue(ctx context.Context, player audio.Player) *audio.Queue {
	queue := audio.NewQueue(player, func(err error) {
		logger.Warn("audio playback failed", "error", err)
	})
	go queue.Run(ctx)
	return queue
}
