package domain

import "strings"

// MessageKind identifies a session channel message.
type MessageKind string

const (
	MessageAuth        MessageKind = "auth"
	MessageAuthOK      MessageKind = "auth_ok"
	MessageStart       MessageKind = "start"
	MessageStop        MessageKind = "stop"
	MessageFinalResult MessageKind = "final_result"
	MessageTranscript  MessageKind = "transcript"
	MessageError       MessageKind = "error"
)

// TranscriptMessage is the JSON envelope exchanged with the recognition engine.
type TranscriptMessage struct {
	Kind  MessageKind `json:"type"`
	Text  string      `json:"text,omitempty"`
	Error string      `json:"error,omitempty"`
	Token string      `json:"token,omitempty"`
}

// NormalizedKind folds the wire spelling ("FINAL_RESULT", "Transcript") to a known kind.
func (m TranscriptMessage) NormalizedKind() MessageKind {
	return MessageKind(strings.ToLower(strings.TrimSpace(string(m.Kind))))
}

// IsTranscript reports whether the message carries recognized text.
func (m TranscriptMessage) IsTranscript() bool {
	kind := m.NormalizedKind()
	return kind == MessageFinalResult || kind == MessageTranscript
}
