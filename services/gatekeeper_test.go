package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"booking/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatekeeperFixture struct {
	store     *MemoryStore
	geocoder  *fakeGeocoder
	assistant *fakeAssistant
	gk        *Gatekeeper
}

func newGatekeeperFixture() *gatekeeperFixture {
	f := &gatekeeperFixture{
		store:     NewMemoryStore(),
		geocoder:  newFakeGeocoder(),
		assistant: newFakeAssistant(),
	}
	f.geocoder.responses["90210, US"] = zipResult("90210", "Beverly Hills", "CA")
	f.geocoder.responses["1 Main St, New York"] = addressResult("1 Main St, New York, NY 10001, USA", "place-main")
	f.gk = NewGatekeeper(f.store, NewLocationValidator(f.geocoder, "US", nil), f.assistant, nil)
	return f
}

func (f *gatekeeperFixture) start(t *testing.T) models.ConversationState {
	t.Helper()
	res, err := f.gk.StartConversation(context.Background())
	require.NoError(t, err)
	return res.Conversation
}

func TestStartConversation(t *testing.T) {
	f := newGatekeeperFixture()

	res, err := f.gk.StartConversation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, GreetingMessage, res.Message)
	assert.False(t, res.Conversation.AddressValidated)
	assert.NotEmpty(t, res.Conversation.ThreadID)

	assert.Equal(t, []transcriptEntry{{Role: RoleAssistant, Content: GreetingMessage}},
		f.assistant.transcript(res.Conversation.ThreadID))
	assert.Equal(t, 1, f.store.Len())
}

func TestStartConversation_ThreadFailure(t *testing.T) {
	f := newGatekeeperFixture()
	f.assistant.createErr = errors.New("provider unavailable")

	_, err := f.gk.StartConversation(context.Background())
	require.Error(t, err)
	assert.Zero(t, f.store.Len())
}

func TestSubmitChat_RequiresValidatedAddress(t *testing.T) {
	f := newGatekeeperFixture()
	conv := f.start(t)

	for _, msg := range []string{"hello", "I need a cleaning quote", "", "   "} {
		_, err := f.gk.SubmitChat(context.Background(), conv.ConversationID, msg)
		assert.ErrorIs(t, err, ErrAddressNotValidated, "message %q", msg)
	}
	assert.Zero(t, f.assistant.submits())
}

func TestSubmitAddress_ZipCodeUnlocksChat(t *testing.T) {
	f := newGatekeeperFixture()
	conv := f.start(t)

	res, err := f.gk.SubmitAddress(context.Background(), conv.ConversationID, "90210")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.True(t, res.CanContinue)
	require.NotNil(t, res.Location)
	assert.Equal(t, "90210", res.Location.PostalCode)
	assert.Contains(t, res.Message, "90210 (Beverly Hills, CA)")

	state, err := f.store.Get(context.Background(), conv.ConversationID)
	require.NoError(t, err)
	assert.True(t, state.AddressValidated)

	assert.Equal(t, []transcriptEntry{
		{Role: RoleAssistant, Content: GreetingMessage},
		{Role: RoleUser, Content: "90210"},
		{Role: RoleAssistant, Content: res.Message},
	}, f.assistant.transcript(conv.ThreadID))

	chat, err := f.gk.SubmitChat(context.Background(), conv.ConversationID, "I need a cleaning quote")
	require.NoError(t, err)
	assert.Equal(t, "I need a cleaning quote", chat.UserMessage)
	assert.NotEmpty(t, chat.AssistantResponse)
	assert.Equal(t, "run_1", chat.RunID)
}

func TestSubmitAddress_PostalMismatchKeepsGateClosed(t *testing.T) {
	f := newGatekeeperFixture()
	f.geocoder.responses["90210, US"] = zipResult("90211", "Beverly Hills", "CA")
	conv := f.start(t)

	res, err := f.gk.SubmitAddress(context.Background(), conv.ConversationID, "90210")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.False(t, res.CanContinue)
	assert.Nil(t, res.Location)
	assert.Equal(t, RejectionMessage, res.Message)

	state, err := f.store.Get(context.Background(), conv.ConversationID)
	require.NoError(t, err)
	assert.False(t, state.AddressValidated)
	assert.Nil(t, state.AddressData)

	// The rejected input itself is not forwarded.
	assert.Equal(t, []transcriptEntry{
		{Role: RoleAssistant, Content: GreetingMessage},
		{Role: RoleAssistant, Content: RejectionMessage},
	}, f.assistant.transcript(conv.ThreadID))

	_, err = f.gk.SubmitChat(context.Background(), conv.ConversationID, "hello")
	assert.ErrorIs(t, err, ErrAddressNotValidated)
}

func TestSubmitAddress_ProviderDownIsRejection(t *testing.T) {
	f := newGatekeeperFixture()
	f.geocoder.err = errors.New("dial tcp: i/o timeout")
	conv := f.start(t)

	res, err := f.gk.SubmitAddress(context.Background(), conv.ConversationID, "1 Main St, New York")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, RejectionMessage, res.Message)
}

func TestSubmitAddress_BlankInputSkipsProvider(t *testing.T) {
	f := newGatekeeperFixture()
	conv := f.start(t)

	res, err := f.gk.SubmitAddress(context.Background(), conv.ConversationID, "   ")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Zero(t, f.geocoder.calls())
}

func TestSubmitAddress_UnknownConversation(t *testing.T) {
	f := newGatekeeperFixture()
	conv := f.start(t)

	_, err := f.gk.SubmitAddress(context.Background(), "not-a-conversation", "90210")
	assert.ErrorIs(t, err, ErrUnknownConversation)
	assert.Zero(t, f.geocoder.calls())
	assert.Equal(t, 1, f.store.Len())

	state, err := f.store.Get(context.Background(), conv.ConversationID)
	require.NoError(t, err)
	assert.False(t, state.AddressValidated)
}

func TestSubmitAddress_RevalidationLastWriteWins(t *testing.T) {
	f := newGatekeeperFixture()
	conv := f.start(t)

	_, err := f.gk.SubmitAddress(context.Background(), conv.ConversationID, "90210")
	require.NoError(t, err)

	res, err := f.gk.SubmitAddress(context.Background(), conv.ConversationID, "1 Main St, New York")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Contains(t, res.Message, "1 Main St, New York, NY 10001, USA")

	state, err := f.store.Get(context.Background(), conv.ConversationID)
	require.NoError(t, err)
	require.NotNil(t, state.AddressData)
	assert.Equal(t, "place-main", state.AddressData.PlaceID)
	assert.Empty(t, state.AddressData.PostalCode)
}

func TestSubmitAddress_ForwardFailureDoesNotUndoValidation(t *testing.T) {
	f := newGatekeeperFixture()
	conv := f.start(t)
	f.assistant.appendErr = errors.New("provider unavailable")

	res, err := f.gk.SubmitAddress(context.Background(), conv.ConversationID, "90210")
	require.NoError(t, err)
	assert.True(t, res.Valid)

	state, err := f.store.Get(context.Background(), conv.ConversationID)
	require.NoError(t, err)
	assert.True(t, state.AddressValidated)
}

func TestSubmitChat_EmptyMessage(t *testing.T) {
	f := newGatekeeperFixture()
	conv := f.start(t)
	_, err := f.gk.SubmitAddress(context.Background(), conv.ConversationID, "90210")
	require.NoError(t, err)

	_, err = f.gk.SubmitChat(context.Background(), conv.ConversationID, " \t\n")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Zero(t, f.assistant.submits())
}

func TestSubmitChat_UnknownConversation(t *testing.T) {
	f := newGatekeeperFixture()
	_, err := f.gk.SubmitChat(context.Background(), "missing", "hello")
	assert.ErrorIs(t, err, ErrUnknownConversation)
	assert.Zero(t, f.store.Len())
}

func TestSubmitChat_RunFailurePropagates(t *testing.T) {
	f := newGatekeeperFixture()
	conv := f.start(t)
	_, err := f.gk.SubmitAddress(context.Background(), conv.ConversationID, "90210")
	require.NoError(t, err)
	f.assistant.submitErr = &RunFailure{RunID: "run_9", Status: "failed"}

	_, err = f.gk.SubmitChat(context.Background(), conv.ConversationID, "hello")
	var failure *RunFailure
	require.ErrorAs(t, err, &failure)
	assert.False(t, IsClientError(err))
}

func TestConversation_ReadsTranscriptLive(t *testing.T) {
	f := newGatekeeperFixture()
	conv := f.start(t)
	_, err := f.gk.SubmitAddress(context.Background(), conv.ConversationID, "90210")
	require.NoError(t, err)
	_, err = f.gk.SubmitChat(context.Background(), conv.ConversationID, "3 bedrooms")
	require.NoError(t, err)

	view, err := f.gk.Conversation(context.Background(), conv.ConversationID)
	require.NoError(t, err)
	assert.True(t, view.State.AddressValidated)
	require.Len(t, view.History, 5)
	assert.Equal(t, "3 bedrooms", view.History[3].Content)

	_, err = f.gk.Conversation(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownConversation)
}

func TestConfirmationMessage(t *testing.T) {
	tests := []struct {
		name string
		kind InputKind
		loc  models.LocationRecord
		want string
	}{
		{"zip with city and state", ZipCode, models.LocationRecord{PostalCode: "90210", City: "Beverly Hills", State: "CA"},
			"Great news! We service the 90210 (Beverly Hills, CA) area. " + detailsPrompt},
		{"zip with city only", ZipCode, models.LocationRecord{PostalCode: "90210", City: "Beverly Hills"},
			"Great news! We service the 90210 (Beverly Hills) area. " + detailsPrompt},
		{"zip bare", ZipCode, models.LocationRecord{PostalCode: "90210"},
			"Great news! We service the 90210 area. " + detailsPrompt},
		{"full address", FullAddress, models.LocationRecord{FormattedAddress: "1 Main St, New York, NY 10001, USA"},
			"Thanks! We've confirmed your address: 1 Main St, New York, NY 10001, USA. " + detailsPrompt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, confirmationMessage(tt.kind, tt.loc))
		})
	}
}

// blockingAssistant holds every chat turn until release is closed.
type blockingAssistant struct {
	*fakeAssistant
	entered chan string
	release chan struct{}
}

func (b *blockingAssistant) SubmitAndAwaitReply(ctx context.Context, threadID, message string) (AssistantReply, error) {
	b.entered <- threadID
	<-b.release
	return b.fakeAssistant.SubmitAndAwaitReply(ctx, threadID, message)
}

func TestSubmitChat_SlowRunDoesNotBlockOtherConversations(t *testing.T) {
	f := newGatekeeperFixture()
	slow := &blockingAssistant{
		fakeAssistant: f.assistant,
		entered:       make(chan string, 1),
		release:       make(chan struct{}),
	}
	f.gk = NewGatekeeper(f.store, NewLocationValidator(f.geocoder, "US", nil), slow, nil)
	ctx := context.Background()

	a := f.start(t)
	_, err := f.gk.SubmitAddress(ctx, a.ConversationID, "90210")
	require.NoError(t, err)

	chatDone := make(chan error, 1)
	go func() {
		_, err := f.gk.SubmitChat(ctx, a.ConversationID, "I need a cleaning quote")
		chatDone <- err
	}()

	select {
	case threadID := <-slow.entered:
		require.Equal(t, a.ThreadID, threadID)
	case <-time.After(2 * time.Second):
		t.Fatal("chat turn never reached the assistant")
	}

	otherDone := make(chan error, 1)
	go func() {
		res, err := f.gk.StartConversation(ctx)
		if err != nil {
			otherDone <- err
			return
		}
		b := res.Conversation.ConversationID
		if _, err := f.gk.SubmitAddress(ctx, b, "1 Main St, New York"); err != nil {
			otherDone <- err
			return
		}
		state, err := f.gk.Status(ctx, b)
		if err == nil && !state.AddressValidated {
			err = errors.New("second conversation not validated")
		}
		otherDone <- err
	}()

	select {
	case err := <-otherDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second conversation blocked behind a pending run")
	}
	select {
	case <-chatDone:
		t.Fatal("chat turn finished before its run was released")
	default:
	}

	close(slow.release)
	select {
	case err := <-chatDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("chat turn did not finish after release")
	}
}
