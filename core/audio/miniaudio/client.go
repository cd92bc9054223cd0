package miniaudio

import (
	"context"
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-battle/core/audio"
)

// Player plays mono 16-bit PCM on the default output device.
type Player struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	encodingInfo audio.EncodingInfo
	playbackClient
}

type PlayerOption func(*Player)

func WithEncodingInfo(info audio.EncodingInfo) PlayerOption {
	return func(p *Player) {
		if !info.IsZero() {
			p.encodingInfo = info
		}
	}
}

func NewPlayer(opts ...PlayerOption) (*Player, error) {
	player := &Player{encodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(player)
	}
	if player.encodingInfo.Format != audio.EncodingLinear16 {
		return nil, fmt.Errorf("unsupported encoding %q", player.encodingInfo.Format.Name())
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("malgo InitContext failed: %w", err)
	}
	player.audioContext = audioCtx

	if err := player.playbackClient.Init(audioCtx, uint32(player.encodingInfo.SampleRate)); err != nil {
		player.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}
	if err := player.playbackClient.Start(); err != nil {
		player.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	return player, nil
}

// Play queues pcm on the device and blocks until it has been played.
// Cancelling ctx drops whatever has not been played yet.
func (p *Player) Play(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	if err := p.playbackClient.SendAudio(pcm); err != nil {
		return err
	}

	played := make(chan struct{})
	p.playbackClient.Mark(func() { close(played) })

	select {
	case <-played:
		return nil
	case <-ctx.Done():
		p.playbackClient.ClearBuffer()
		return ctx.Err()
	}
}

func (p *Player) EncodingInfo() audio.EncodingInfo {
	return p.encodingInfo
}

func (p *Player) Close() error {
	_ = p.playbackClient.Uninit()
	if p.audioContext != nil {
		_ = p.audioContext.Uninit()
		p.audioContext.Free()
		p.audioContext = nil
	}
	return nil
}
