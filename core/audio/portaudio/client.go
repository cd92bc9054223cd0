package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-battle/core/audio"
)

const defaultBufferSize = 1024

// Player writes mono 16-bit PCM to the default output device.
type Player struct {
	bufferSize   int
	encodingInfo audio.EncodingInfo

	mu     sync.Mutex
	stream *portaudio.Stream
	out    []int16
}

type PlayerOption func(*Player)

// WithBufferSize sets the number of samples written per stream write.
func WithBufferSize(bufferSize int) PlayerOption {
	return func(p *Player) {
		if bufferSize > 0 {
			p.bufferSize = bufferSize
		}
	}
}

func WithEncodingInfo(info audio.EncodingInfo) PlayerOption {
	return func(p *Player) {
		if !info.IsZero() {
			p.encodingInfo = info
		}
	}
}

func NewPlayer(opts ...PlayerOption) (*Player, error) {
	player := &Player{
		bufferSize:   defaultBufferSize,
		encodingInfo: audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(player)
	}
	if player.encodingInfo.Format != audio.EncodingLinear16 {
		return nil, fmt.Errorf("unsupported encoding %q", player.encodingInfo.Format.Name())
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	player.out = make([]int16, player.bufferSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(player.encodingInfo.SampleRate), player.bufferSize, player.out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open PortAudio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to start PortAudio stream: %w", err)
	}
	player.stream = stream

	return player, nil
}

// Play writes pcm to the stream and returns once the last buffer has been
// handed to the device. ctx is checked between buffers.
func (p *Player) Play(ctx context.Context, pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return fmt.Errorf("stream closed")
	}

	for _, chunk := range chunks(pcm, p.bufferSize*2) {
		if err := ctx.Err(); err != nil {
			return err
		}

		clear(p.out)
		if err := binary.Read(bytes.NewReader(chunk), binary.LittleEndian, p.out[:len(chunk)/2]); err != nil {
			return fmt.Errorf("failed to decode audio: %w", err)
		}
		if err := p.stream.Write(); err != nil {
			return fmt.Errorf("failed to write to PortAudio stream: %w", err)
		}
	}
	return nil
}

// chunks splits pcm into buffers of at most size bytes, dropping a trailing
// odd byte.
func chunks(pcm []byte, size int) [][]byte {
	pcm = pcm[:len(pcm)-len(pcm)%2]
	var result [][]byte
	for len(pcm) > 0 {
		n := min(size, len(pcm))
		result = append(result, pcm[:n])
		pcm = pcm[n:]
	}
	return result
}

func (p *Player) EncodingInfo() audio.EncodingInfo {
	return p.encodingInfo
}

func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return nil
	}
	_ = p.stream.Stop()
	err := p.stream.Close()
	p.stream = nil
	if termErr := portaudio.Terminate(); err == nil {
		err = termErr
	}
	return err
}
