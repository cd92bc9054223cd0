package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

type playbackClient struct {
	device *malgo.Device
	config malgo.DeviceConfig

	buffer []byte
	marks  []playbackMark

	mu       sync.Mutex
	bufferMu sync.Mutex
}

// playbackMark fires once the device has consumed position more bytes.
type playbackMark struct {
	position int
	callback func()
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext, sampleRate uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.config = malgo.DefaultDeviceConfig(malgo.Playback)
	c.config.SampleRate = sampleRate
	c.config.Playback.Format = format
	c.config.Playback.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	c.config.Periods = 4

	var err error
	if c.device, err = malgo.InitDevice(
		audioContext.Context,
		c.config,
		malgo.DeviceCallbacks{Data: c.processAudio(bytesPerFrame)},
	); err != nil {
		return err
	}

	return nil
}

func (c *playbackClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

func (c *playbackClient) SendAudio(audio []byte) error {
	c.mu.Lock()
	started := c.device != nil && c.device.IsStarted()
	c.mu.Unlock()
	if !started {
		return fmt.Errorf("device not started")
	}

	c.bufferMu.Lock()
	defer c.bufferMu.Unlock()
	c.buffer = append(c.buffer, audio...)
	return nil
}

// Mark calls callback once everything buffered so far has been played.
func (c *playbackClient) Mark(callback func()) {
	c.bufferMu.Lock()
	defer c.bufferMu.Unlock()
	c.marks = append(c.marks, playbackMark{position: len(c.buffer), callback: callback})
}

// ClearBuffer drops pending audio and fires every outstanding mark.
func (c *playbackClient) ClearBuffer() {
	c.bufferMu.Lock()
	marks := c.marks
	c.buffer = nil
	c.marks = nil
	c.bufferMu.Unlock()

	for _, mark := range marks {
		mark.callback()
	}
}

func (c *playbackClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}
	c.device.Uninit()
	c.device = nil
	return nil
}

func (c *playbackClient) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame

		c.bufferMu.Lock()
		n := copy(pOutput[:need], c.buffer)
		c.buffer = c.buffer[n:]
		passed := c.advanceMarks(n)
		c.bufferMu.Unlock()

		// Unfilled frames stay silent.
		clear(pOutput[n:need])

		if len(passed) > 0 {
			go func() {
				for _, mark := range passed {
					mark.callback()
				}
			}()
		}
	}
}

// advanceMarks moves every mark consumed bytes closer and returns the ones
// that have been reached. Callers hold bufferMu.
func (c *playbackClient) advanceMarks(consumed int) []playbackMark {
	var passed []playbackMark
	remaining := c.marks[:0]
	for _, mark := range c.marks {
		mark.position -= consumed
		if mark.position <= 0 {
			passed = append(passed, mark)
			continue
		}
		remaining = append(remaining, mark)
	}
	c.marks = remaining
	return passed
}
