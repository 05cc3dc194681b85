package audio

import (
	"context"
	"errors"
	"log"
	"sync"
)

var ErrCaptureBusy = errors.New("audio: capture already active")

// inputStream is one opened capture stream.
type inputStream interface {
	// Read blocks for one frame and returns a copy of it.
	Read() ([]int16, error)
	Stop() error
}

// Microphone hands out exclusive Capture handles on an input device.
type Microphone struct {
	open func() (inputStream, error)

	mu     sync.Mutex
	active *Capture
	live   map[*Capture]struct{}
}

// NewMicrophone returns a PortAudio microphone capturing mono PCM16 at sampleRate in
// 20 ms frames. device may be empty to use the system default input.
func NewMicrophone(sampleRate int, device string) *Microphone {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return newMicrophone(func() (inputStream, error) {
		return openPortAudioInput(sampleRate, FrameSize(sampleRate), device)
	})
}

func newMicrophone(open func() (inputStream, error)) *Microphone {
	return &Microphone{open: open, live: make(map[*Capture]struct{})}
}

// Open starts capturing. Frames are delivered on Capture.Frames until Stop or ctx is done.
func (m *Microphone) Open(ctx context.Context) (*Capture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return nil, ErrCaptureBusy
	}
	st, err := m.open()
	if err != nil {
		return nil, err
	}
	c := &Capture{
		stream: st,
		frames: make(chan []byte, 16),
		done:   make(chan struct{}),
		mic:    m,
	}
	m.active = c
	m.live[c] = struct{}{}
	go c.pump(ctx)
	return c, nil
}

// Active reports whether a capture is currently open.
func (m *Microphone) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil
}

// StopAll stops every capture this microphone has opened and not yet released.
// Errors are logged. Returns the number of captures stopped.
func (m *Microphone) StopAll() int {
	m.mu.Lock()
	caps := make([]*Capture, 0, len(m.live))
	for c := range m.live {
		caps = append(caps, c)
	}
	m.mu.Unlock()

	for _, c := range caps {
		if err := c.Stop(); err != nil {
			log.Printf("audio: stop lingering capture: %v", err)
		}
	}
	return len(caps)
}

func (m *Microphone) release(c *Capture) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, c)
	if m.active == c {
		m.active = nil
	}
}

// Capture is one open capture stream.
type Capture struct {
	stream inputStream
	frames chan []byte
	done   chan struct{}
	mic    *Microphone

	stopOnce sync.Once
	stopErr  error
}

// Frames yields PCM16 little-endian frames. Closed when the capture stops.
func (c *Capture) Frames() <-chan []byte { return c.frames }

// Stop ends the capture and releases the device. Safe to call more than once.
func (c *Capture) Stop() error {
	c.stopOnce.Do(func() {
		close(c.done)
		c.stopErr = c.stream.Stop()
		c.mic.release(c)
	})
	return c.stopErr
}

func (c *Capture) pump(ctx context.Context) {
	defer close(c.frames)
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			_ = c.Stop()
			return
		default:
		}
		samples, err := c.stream.Read()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Printf("audio: capture read: %v", err)
				_ = c.Stop()
			}
			return
		}
		select {
		case c.frames <- EncodePCM16(samples):
		case <-c.done:
			return
		case <-ctx.Done():
			_ = c.Stop()
			return
		}
	}
}
