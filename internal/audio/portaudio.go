package audio

import (
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"
)

var (
	paOnce   sync.Once
	paErr    error
	paInited bool
)

// initPortAudio initializes PortAudio once per process.
func initPortAudio() error {
	paOnce.Do(func() {
		paErr = portaudio.Initialize()
		paInited = paErr == nil
	})
	return paErr
}

// Terminate releases PortAudio. Call once at process exit after every stream is stopped.
func Terminate() {
	if !paInited {
		return
	}
	if err := portaudio.Terminate(); err != nil {
		log.Printf("audio: terminate: %v", err)
	}
}

func findDevice(name string, input bool) (*portaudio.DeviceInfo, error) {
	if name != "" {
		devices, err := portaudio.Devices()
		if err != nil {
			return nil, fmt.Errorf("audio: list devices: %w", err)
		}
		for _, d := range devices {
			if d.Name != name {
				continue
			}
			if (input && d.MaxInputChannels > 0) || (!input && d.MaxOutputChannels > 0) {
				return d, nil
			}
		}
	}
	if input {
		return portaudio.DefaultInputDevice()
	}
	return portaudio.DefaultOutputDevice()
}

type paInput struct {
	stream *portaudio.Stream
	buffer []int16
}

func openPortAudioInput(sampleRate, frameSize int, device string) (inputStream, error) {
	if err := initPortAudio(); err != nil {
		return nil, fmt.Errorf("audio: init: %w", err)
	}
	dev, err := findDevice(device, true)
	if err != nil {
		return nil, fmt.Errorf("audio: no input device: %w", err)
	}
	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.Output.Device = nil
	params.Output.Channels = 0
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = frameSize

	in := &paInput{buffer: make([]int16, frameSize)}
	stream, err := portaudio.OpenStream(params, in.buffer)
	if err != nil {
		return nil, fmt.Errorf("audio: open capture stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("audio: start capture: %w", err)
	}
	in.stream = stream
	return in, nil
}

func (p *paInput) Read() ([]int16, error) {
	if err := p.stream.Read(); err != nil {
		return nil, fmt.Errorf("audio: read frame: %w", err)
	}
	frame := make([]int16, len(p.buffer))
	copy(frame, p.buffer)
	return frame, nil
}

func (p *paInput) Stop() error {
	stopErr := p.stream.Stop()
	if err := p.stream.Close(); err != nil && stopErr == nil {
		stopErr = err
	}
	return stopErr
}

type paOutput struct {
	stream *portaudio.Stream
	buffer []int16
}

func openPortAudioOutput(sampleRate, frameSize int, device string) (outputStream, error) {
	if err := initPortAudio(); err != nil {
		return nil, fmt.Errorf("audio: init: %w", err)
	}
	dev, err := findDevice(device, false)
	if err != nil {
		return nil, fmt.Errorf("audio: no output device: %w", err)
	}
	params := portaudio.LowLatencyParameters(nil, dev)
	params.Output.Channels = 1
	params.Input.Device = nil
	params.Input.Channels = 0
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = frameSize

	out := &paOutput{buffer: make([]int16, frameSize)}
	stream, err := portaudio.OpenStream(params, out.buffer)
	if err != nil {
		return nil, fmt.Errorf("audio: open playback stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("audio: start playback: %w", err)
	}
	out.stream = stream
	return out, nil
}

func (p *paOutput) FrameSize() int { return len(p.buffer) }

func (p *paOutput) Write(frame []int16) error {
	if len(frame) != len(p.buffer) {
		return fmt.Errorf("audio: frame size mismatch: got %d, want %d", len(frame), len(p.buffer))
	}
	copy(p.buffer, frame)
	if err := p.stream.Write(); err != nil {
		return fmt.Errorf("audio: write frame: %w", err)
	}
	return nil
}

func (p *paOutput) Stop() error {
	stopErr := p.stream.Stop()
	if err := p.stream.Close(); err != nil && stopErr == nil {
		stopErr = err
	}
	return stopErr
}
