package audio

import (
	"log"
	"sync"
)

// outputStream is one opened playback stream.
type outputStream interface {
	FrameSize() int
	Write(frame []int16) error
	Stop() error
}

// Speaker plays assistant audio deltas. Play never blocks the caller: chunks are queued
// and written by a playback goroutine, and dropped when the queue is full.
type Speaker struct {
	open func() (outputStream, error)

	mu      sync.Mutex
	stream  outputStream
	queue   chan []int16
	flush   chan struct{}
	stopped chan struct{}
	done    chan struct{}
}

// NewSpeaker returns a PortAudio speaker for mono PCM16 at sampleRate. device may be empty.
func NewSpeaker(sampleRate int, device string) *Speaker {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return newSpeaker(func() (outputStream, error) {
		return openPortAudioOutput(sampleRate, FrameSize(sampleRate), device)
	})
}

func newSpeaker(open func() (outputStream, error)) *Speaker {
	return &Speaker{open: open}
}

// Start opens the output device. Starting a started speaker is a no-op.
func (s *Speaker) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return nil
	}
	st, err := s.open()
	if err != nil {
		return err
	}
	s.stream = st
	s.queue = make(chan []int16, 256)
	s.flush = make(chan struct{}, 1)
	s.stopped = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(st, s.queue, s.flush, s.stopped, s.done)
	return nil
}

// Play queues a PCM16 little-endian chunk.
func (s *Speaker) Play(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil || len(pcm) < 2 {
		return
	}
	select {
	case s.queue <- DecodePCM16(pcm):
	default:
		log.Printf("audio: playback queue full, dropping %d bytes", len(pcm))
	}
}

// Flush discards queued audio, e.g. after the response was interrupted.
func (s *Speaker) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return
	}
	select {
	case s.flush <- struct{}{}:
	default:
	}
}

// Close stops playback and releases the device. Safe to call on a stopped speaker.
func (s *Speaker) Close() error {
	s.mu.Lock()
	st, stopped, done := s.stream, s.stopped, s.done
	s.stream = nil
	s.mu.Unlock()
	if st == nil {
		return nil
	}
	close(stopped)
	<-done
	return st.Stop()
}

func (s *Speaker) loop(st outputStream, queue <-chan []int16, flush, stopped <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	size := st.FrameSize()
	var pending []int16
	for {
		select {
		case <-stopped:
			return
		case <-flush:
			pending = pending[:0]
			for drained := false; !drained; {
				select {
				case <-queue:
				default:
					drained = true
				}
			}
		case chunk := <-queue:
			pending = append(pending, chunk...)
			for len(pending) >= size {
				if err := st.Write(pending[:size]); err != nil {
					log.Printf("audio: playback: %v", err)
				}
				pending = pending[size:]
			}
		}
	}
}
