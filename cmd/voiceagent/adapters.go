package main

import (
	"context"

	"voice-trial-agent/internal/audio"
	"voice-trial-agent/internal/realtime"
	"voice-trial-agent/internal/voice"
)

// dialerConnector adapts a realtime.Dialer to voice.Connector.
type dialerConnector struct{ d *realtime.Dialer }

func (c dialerConnector) Connect(ctx context.Context, credential string) (voice.Conn, error) {
	s, err := c.d.Dial(ctx, credential)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// micAdapter adapts an audio.Microphone to voice.Microphone.
type micAdapter struct{ m *audio.Microphone }

func (a micAdapter) Open(ctx context.Context) (voice.Capture, error) {
	c, err := a.m.Open(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (a micAdapter) StopAll() int { return a.m.StopAll() }
