package audio

import (
	"context"
	"sync"
	"time"
)

// Player plays raw PCM audio. Play blocks until the clip has been played or
// ctx is done.
type Player interface {
	Play(ctx context.Context, pcm []byte) error
}

// SilentPlayer pretends to play audio by waiting for as long as the clip
// would take on a real device.
type SilentPlayer struct {
	EncodingInfo EncodingInfo
}

func (p SilentPlayer) Play(ctx context.Context, pcm []byte) error {
	info := p.EncodingInfo
	if info.IsZero() {
		info = GetDefaultEncodingInfo()
	}

	timer := time.NewTimer(info.Duration(len(pcm)))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type clip struct {
	pcm      []byte
	onPlayed func()
}

// Queue plays clips one after another on a Player. onPlayed is called after
// a clip finished, even when the player failed, so that whoever waits for
// playback is never left hanging.
type Queue struct {
	player  Player
	onError func(error)

	mu      sync.Mutex
	pending []clip
	wake    chan struct{}
}

func NewQueue(player Player, onError func(error)) *Queue {
	return &Queue{
		player:  player,
		onError: onError,
		wake:    make(chan struct{}, 1),
	}
}

func (q *Queue) Enqueue(pcm []byte, onPlayed func()) {
	q.mu.Lock()
	q.pending = append(q.pending, clip{pcm: pcm, onPlayed: onPlayed})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Clear drops every clip that has not started playing yet.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
}

// Run plays queued clips until ctx is done.
func (q *Queue) Run(ctx context.Context) {
	for {
		next, ok := q.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}

		if len(next.pcm) > 0 {
			if err := q.player.Play(ctx, next.pcm); err != nil {
				if ctx.Err() != nil {
					return
				}
				if q.onError != nil {
					q.onError(err)
				}
			}
		}
		if next.onPlayed != nil {
			next.onPlayed()
		}
	}
}

func (q *Queue) next() (clip, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return clip{}, false
	}
	next := q.pending[0]
	q.pending = q.pending[1:]
	return next, true
}
