package net

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mosaicnetworks/delta/src/delta"
)

// MessageType identifies the payload of a Message.
type MessageType uint8

const (
	// CandidateDeltaMsg carries a delta.CandidateDeltaBroadcast.
	CandidateDeltaMsg MessageType = iota + 1
	// FavouriteDeltaMsg carries a delta.FavouriteDeltaBroadcast.
	FavouriteDeltaMsg
	// DeltaDfsHashMsg carries a delta.DeltaDfsHashBroadcast.
	DeltaDfsHashMsg
)

func (t MessageType) String() string {
	switch t {
	case CandidateDeltaMsg:
		return "CandidateDelta"
	case FavouriteDeltaMsg:
		return "FavouriteDelta"
	case DeltaDfsHashMsg:
		return "DeltaDfsHash"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// Message is the envelope of everything broadcast between nodes.
type Message struct {
	Type          MessageType
	CorrelationID string
	Sender        string
	Payload       []byte
}

// NewMessage encodes payload in a new envelope with a fresh correlation id.
func NewMessage(msgType MessageType, sender string, payload interface{}) (*Message, error) {
	data, err := delta.Encode(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:          msgType,
		CorrelationID: uuid.NewString(),
		Sender:        sender,
		Payload:       data,
	}, nil
}

// Decode decodes the payload into v.
func (m *Message) Decode(v interface{}) error {
	return delta.Decode(m.Payload, v)
}

// Marshal ...
func (m *Message) Marshal() ([]byte, error) {
	return delta.Encode(m)
}

// Unmarshal ...
func (m *Message) Unmarshal(data []byte) error {
	return delta.Decode(data, m)
}
