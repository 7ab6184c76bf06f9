package models

import (
	"time"
)

// ConversationState is the locally tracked part of a conversation. The
// transcript itself lives with the assistant provider under ThreadID.
type ConversationState struct {
	ConversationID   string          `json:"conversation_id"`
	ThreadID         string          `json:"thread_id"`
	AddressValidated bool            `json:"address_validated"`
	AddressData      *LocationRecord `json:"address_data"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Clone returns a copy that shares no mutable data with s.
func (s ConversationState) Clone() ConversationState {
	if s.AddressData != nil {
		loc := *s.AddressData
		s.AddressData = &loc
	}
	return s
}

// TranscriptMessage is one entry of the provider-held transcript.
type TranscriptMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
