package realtime

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Client event types.
const (
	typeSessionUpdate      = "session.update"
	typeAudioAppend        = "input_audio_buffer.append"
	typeAudioClear         = "input_audio_buffer.clear"
	typeResponseCancel     = "response.cancel"
	transcriptionModel     = "gpt-4o-mini-transcribe"
	audioFormatPCM         = "audio/pcm"
	turnDetectionServerVAD = "server_vad"
)

// Server event types.
const (
	typeSessionCreated        = "session.created"
	typeSessionUpdated        = "session.updated"
	typeTranscriptionComplete = "conversation.item.input_audio_transcription.completed"
	typeItemDone              = "conversation.item.done"
	typeOutputAudioDelta      = "response.output_audio.delta"
	typeAudioDeltaLegacy      = "response.audio.delta"
	typeError                 = "error"
)

type audioFormat struct {
	Type string `json:"type"`
	Rate int    `json:"rate"`
}

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Type         string      `json:"type"`
	Model        string      `json:"model"`
	Instructions string      `json:"instructions"`
	Audio        audioConfig `json:"audio"`
}

type audioConfig struct {
	Input  audioInput  `json:"input"`
	Output audioOutput `json:"output"`
}

type audioInput struct {
	Format        audioFormat   `json:"format"`
	Transcription transcription `json:"transcription"`
	TurnDetection turnDetection `json:"turn_detection"`
}

type audioOutput struct {
	Format audioFormat `json:"format"`
}

type transcription struct {
	Model string `json:"model"`
}

type turnDetection struct {
	Type string `json:"type"`
}

type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type simpleEvent struct {
	Type string `json:"type"`
}

func newSessionUpdate(model string, persona Persona, sampleRate int) sessionUpdate {
	format := audioFormat{Type: audioFormatPCM, Rate: sampleRate}
	return sessionUpdate{
		Type: typeSessionUpdate,
		Session: sessionConfig{
			Type:         "realtime",
			Model:        model,
			Instructions: persona.Instructions,
			Audio: audioConfig{
				Input: audioInput{
					Format:        format,
					Transcription: transcription{Model: transcriptionModel},
					TurnDetection: turnDetection{Type: turnDetectionServerVAD},
				},
				Output: audioOutput{Format: format},
			},
		},
	}
}

// serverFrame is the union of the server event fields this client reads.
type serverFrame struct {
	Type       string      `json:"type"`
	Transcript string      `json:"transcript"`
	Delta      string      `json:"delta"`
	Item       *serverItem `json:"item"`
	Error      *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type serverItem struct {
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		Transcript string `json:"transcript"`
	} `json:"content"`
}

func (it *serverItem) text() string {
	var parts []string
	for _, c := range it.Content {
		switch {
		case c.Text != "":
			parts = append(parts, c.Text)
		case c.Transcript != "":
			parts = append(parts, c.Transcript)
		}
	}
	return strings.Join(parts, " ")
}

// decodeFrame turns a server text frame into an Event. ok is false for frames the
// client does not surface.
func decodeFrame(data []byte) (string, Event, bool, error) {
	var f serverFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return "", Event{}, false, fmt.Errorf("decode realtime frame: %w", err)
	}
	switch f.Type {
	case typeTranscriptionComplete:
		return f.Type, Event{Type: EventUtteranceTranscribed, Transcript: f.Transcript}, true, nil
	case typeItemDone:
		if f.Item == nil || f.Item.Type != "message" {
			return f.Type, Event{}, false, nil
		}
		return f.Type, Event{Type: EventMessageCreated, Role: f.Item.Role, Content: f.Item.text()}, true, nil
	case typeOutputAudioDelta, typeAudioDeltaLegacy:
		pcm, err := base64.StdEncoding.DecodeString(f.Delta)
		if err != nil {
			return f.Type, Event{}, false, fmt.Errorf("decode audio delta: %w", err)
		}
		return f.Type, Event{Type: EventAudioDelta, Audio: pcm}, true, nil
	case typeError:
		msg := "realtime error"
		if f.Error != nil && f.Error.Message != "" {
			msg = f.Error.Message
		}
		return f.Type, Event{Type: EventError, Err: &ServerError{Message: msg}}, true, nil
	default:
		return f.Type, Event{}, false, nil
	}
}
