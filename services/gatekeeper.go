package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"booking/models"
)

const (
	GreetingMessage  = "Hi! Let's get your instant quote. What address will be getting cleaned?"
	RejectionMessage = "We're having trouble locating that address. Retry?"
	detailsPrompt    = "Please tell us how many rooms, bathrooms and/or the area size you need cleaned."
)

// AddressValidator resolves free-text input to a location.
type AddressValidator interface {
	Validate(ctx context.Context, raw string) (models.LocationRecord, InputKind, error)
}

type StartResult struct {
	Conversation models.ConversationState
	Message      string
}

type AddressResult struct {
	ConversationID string
	Valid          bool
	Location       *models.LocationRecord
	Message        string
	CanContinue    bool
}

type ChatResult struct {
	ConversationID    string
	UserMessage       string
	AssistantResponse string
	RunID             string
}

type ConversationView struct {
	State   models.ConversationState
	History []models.TranscriptMessage
}

// Gatekeeper enforces that a conversation passes address validation before
// any chat turn reaches the assistant. A conversation is either Created
// (AddressValidated false) or AddressValidated; there is no way back.
type Gatekeeper struct {
	store     ConversationStore
	validator AddressValidator
	assistant Assistant
	logger    *slog.Logger
}

func NewGatekeeper(store ConversationStore, validator AddressValidator, assistant Assistant, logger *slog.Logger) *Gatekeeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gatekeeper{
		store:     store,
		validator: validator,
		assistant: assistant,
		logger:    logger.With("component", "gatekeeper"),
	}
}

// StartConversation opens an assistant thread and registers a conversation
// for it. This is the only operation that creates conversation state.
func (g *Gatekeeper) StartConversation(ctx context.Context) (StartResult, error) {
	threadID, err := g.assistant.CreateThread(ctx)
	if err != nil {
		return StartResult{}, err
	}
	state, err := g.store.Create(ctx, threadID)
	if err != nil {
		return StartResult{}, fmt.Errorf("create conversation: %w", err)
	}
	g.forward(ctx, state, RoleAssistant, GreetingMessage)

	g.logger.Info("conversation started", "conversation_id", state.ConversationID, "thread_id", threadID)
	return StartResult{Conversation: state, Message: GreetingMessage}, nil
}

// SubmitAddress validates raw and, on success, moves the conversation to
// AddressValidated. Re-validation is allowed and replaces the stored address.
// A validation failure is a normal result, not an error.
func (g *Gatekeeper) SubmitAddress(ctx context.Context, conversationID, raw string) (AddressResult, error) {
	state, err := g.store.Get(ctx, conversationID)
	if err != nil {
		return AddressResult{}, err
	}

	raw = strings.TrimSpace(raw)
	var (
		loc  models.LocationRecord
		kind InputKind
	)
	if raw == "" {
		err = ErrLocationNotFound
	} else {
		loc, kind, err = g.validator.Validate(ctx, raw)
	}
	if err != nil {
		// The rejected input is not part of the transcript.
		g.forward(ctx, state, RoleAssistant, RejectionMessage)
		g.logger.Info("address rejected", "conversation_id", conversationID, "kind", kind)
		return AddressResult{
			ConversationID: conversationID,
			Message:        RejectionMessage,
		}, nil
	}

	if err := g.store.MarkValidated(ctx, conversationID, loc); err != nil {
		return AddressResult{}, err
	}

	message := confirmationMessage(kind, loc)
	g.forward(ctx, state, RoleUser, raw)
	g.forward(ctx, state, RoleAssistant, message)

	g.logger.Info("address validated",
		"conversation_id", conversationID,
		"kind", kind,
		"formatted_address", loc.FormattedAddress)
	return AddressResult{
		ConversationID: conversationID,
		Valid:          true,
		Location:       &loc,
		Message:        message,
		CanContinue:    true,
	}, nil
}

// SubmitChat runs one assistant turn. The store is read once up front and is
// not touched while the run is polled.
func (g *Gatekeeper) SubmitChat(ctx context.Context, conversationID, message string) (ChatResult, error) {
	state, err := g.store.Get(ctx, conversationID)
	if err != nil {
		return ChatResult{}, err
	}
	if !state.AddressValidated {
		return ChatResult{}, ErrAddressNotValidated
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return ChatResult{}, ErrEmptyMessage
	}

	reply, err := g.assistant.SubmitAndAwaitReply(ctx, state.ThreadID, message)
	if err != nil {
		return ChatResult{}, err
	}
	return ChatResult{
		ConversationID:    conversationID,
		UserMessage:       message,
		AssistantResponse: reply.Text,
		RunID:             reply.RunID,
	}, nil
}

// Conversation returns the local state and the transcript fetched live from
// the assistant provider.
func (g *Gatekeeper) Conversation(ctx context.Context, conversationID string) (ConversationView, error) {
	state, err := g.store.Get(ctx, conversationID)
	if err != nil {
		return ConversationView{}, err
	}
	history, err := g.assistant.ListMessages(ctx, state.ThreadID)
	if err != nil {
		return ConversationView{}, err
	}
	return ConversationView{State: state, History: history}, nil
}

func (g *Gatekeeper) Status(ctx context.Context, conversationID string) (models.ConversationState, error) {
	return g.store.Get(ctx, conversationID)
}

// forward appends a turn to the provider transcript. Failures are logged;
// the local gate decision stands either way.
func (g *Gatekeeper) forward(ctx context.Context, state models.ConversationState, role, content string) {
	if err := g.assistant.AppendMessage(ctx, state.ThreadID, role, content); err != nil {
		g.logger.Warn("failed to forward message to assistant",
			"conversation_id", state.ConversationID,
			"role", role,
			"error", err)
	}
}

func confirmationMessage(kind InputKind, loc models.LocationRecord) string {
	if kind == ZipCode {
		area := loc.PostalCode
		switch {
		case loc.City != "" && loc.State != "":
			area = fmt.Sprintf("%s (%s, %s)", area, loc.City, loc.State)
		case loc.City != "":
			area = fmt.Sprintf("%s (%s)", area, loc.City)
		case loc.State != "":
			area = fmt.Sprintf("%s (%s)", area, loc.State)
		}
		return fmt.Sprintf("Great news! We service the %s area. %s", area, detailsPrompt)
	}
	return fmt.Sprintf("Thanks! We've confirmed your address: %s. %s", loc.FormattedAddress, detailsPrompt)
}
