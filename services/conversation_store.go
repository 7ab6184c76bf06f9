package services

import (
	"context"
	"sync"
	"time"

	"booking/models"

	"github.com/google/uuid"
)

// ConversationStore is the registry of conversation states. Implementations
// must be safe for concurrent use and must never create a state implicitly.
type ConversationStore interface {
	// Create allocates a fresh conversation bound to an assistant thread.
	Create(ctx context.Context, threadID string) (models.ConversationState, error)

	// Get returns ErrUnknownConversation for ids that were never created.
	Get(ctx context.Context, conversationID string) (models.ConversationState, error)

	// MarkValidated sets AddressValidated and replaces AddressData.
	// It returns ErrUnknownConversation for ids that were never created.
	MarkValidated(ctx context.Context, conversationID string, location models.LocationRecord) error
}

func newConversationState(threadID string) models.ConversationState {
	return models.ConversationState{
		ConversationID: uuid.New().String(),
		ThreadID:       threadID,
		CreatedAt:      now().UTC().Truncate(time.Microsecond),
	}
}

// MemoryStore keeps conversations in a map. Every access goes through one
// mutex so a reader never observes a half-updated record.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*models.ConversationState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*models.ConversationState),
	}
}

func (s *MemoryStore) Create(ctx context.Context, threadID string) (models.ConversationState, error) {
	state := newConversationState(threadID)

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := state.Clone()
	s.conversations[state.ConversationID] = &stored
	return state, nil
}

func (s *MemoryStore) Get(ctx context.Context, conversationID string) (models.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.conversations[conversationID]
	if !ok {
		return models.ConversationState{}, ErrUnknownConversation
	}
	return state.Clone(), nil
}

func (s *MemoryStore) MarkValidated(ctx context.Context, conversationID string, location models.LocationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.conversations[conversationID]
	if !ok {
		return ErrUnknownConversation
	}
	state.AddressValidated = true
	state.AddressData = &location
	return nil
}

// Len reports the number of tracked conversations.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

var _ ConversationStore = (*MemoryStore)(nil)
