package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"booking/models"

	"github.com/sashabaranov/go-openai"
)

// Assistant is the conversation capability the gatekeeper depends on. The
// provider owns the transcript; nothing here caches it.
type Assistant interface {
	CreateThread(ctx context.Context) (string, error)
	AppendMessage(ctx context.Context, threadID, role, content string) error
	// SubmitAndAwaitReply appends message as a user turn, runs the assistant
	// and blocks until the run reaches a terminal status.
	SubmitAndAwaitReply(ctx context.Context, threadID, message string) (AssistantReply, error)
	ListMessages(ctx context.Context, threadID string) ([]models.TranscriptMessage, error)
}

type AssistantReply struct {
	RunID string
	Text  string
}

const (
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant

	listPageSize = 100
)

// assistantsAPI is the subset of *openai.Client used by OpenAIAssistant.
type assistantsAPI interface {
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID string, runID string) (openai.Run, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)
}

// RunLoopConfig bounds the polling of a run. A zero Timeout polls until the
// provider reports a terminal status.
type RunLoopConfig struct {
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	Backoff         float64
	Timeout         time.Duration
}

func DefaultRunLoopConfig() RunLoopConfig {
	return RunLoopConfig{
		PollInterval:    time.Second,
		MaxPollInterval: time.Second,
		Backoff:         1,
		Timeout:         2 * time.Minute,
	}
}

// next returns the interval to wait after waiting cur. The interval never
// shrinks; it grows up to the larger of MaxPollInterval and PollInterval.
func (c RunLoopConfig) next(cur time.Duration) time.Duration {
	if !(c.Backoff > 1) || math.IsInf(c.Backoff, 0) {
		return cur
	}
	ceiling := c.MaxPollInterval
	if ceiling > 0 && ceiling < c.PollInterval {
		ceiling = c.PollInterval
	}
	n := time.Duration(float64(cur) * c.Backoff)
	if ceiling > 0 && n > ceiling {
		n = ceiling
	}
	if n < cur {
		return cur
	}
	return n
}

// NewOpenAIClient returns a client for apiKey. baseURL overrides the API
// endpoint when set.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// OpenAIAssistant implements Assistant on top of the OpenAI Assistants API.
type OpenAIAssistant struct {
	api         assistantsAPI
	assistantID string
	loop        RunLoopConfig
	logger      *slog.Logger
}

func NewOpenAIAssistant(api assistantsAPI, assistantID string, loop RunLoopConfig, logger *slog.Logger) *OpenAIAssistant {
	if logger == nil {
		logger = slog.Default()
	}
	if loop.PollInterval <= 0 {
		loop.PollInterval = time.Second
	}
	return &OpenAIAssistant{
		api:         api,
		assistantID: assistantID,
		loop:        loop,
		logger:      logger.With("component", "assistant"),
	}
}

func (a *OpenAIAssistant) CreateThread(ctx context.Context) (string, error) {
	thread, err := a.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return thread.ID, nil
}

func (a *OpenAIAssistant) AppendMessage(ctx context.Context, threadID, role, content string) error {
	_, err := a.api.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    role,
		Content: content,
	})
	if err != nil {
		return fmt.Errorf("append %s message: %w", role, err)
	}
	return nil
}

// SubmitAndAwaitReply does not stop when ctx is cancelled: a started run is
// polled until it terminates or the loop timeout expires.
func (a *OpenAIAssistant) SubmitAndAwaitReply(ctx context.Context, threadID, message string) (AssistantReply, error) {
	ctx = context.WithoutCancel(ctx)
	if a.loop.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.loop.Timeout)
		defer cancel()
	}

	if err := a.AppendMessage(ctx, threadID, RoleUser, message); err != nil {
		return AssistantReply{}, err
	}

	run, err := a.api.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: a.assistantID})
	if err != nil {
		return AssistantReply{}, fmt.Errorf("create run: %w", err)
	}
	a.logger.Debug("run started", "thread_id", threadID, "run_id", run.ID, "status", run.Status)

	run, err = a.awaitRun(ctx, threadID, run)
	if err != nil {
		return AssistantReply{RunID: run.ID}, err
	}

	if run.Status != openai.RunStatusCompleted {
		failure := &RunFailure{RunID: run.ID, Status: string(run.Status)}
		if run.LastError != nil {
			failure.Message = run.LastError.Message
		}
		a.logger.Error("run failed", "thread_id", threadID, "run_id", run.ID, "status", run.Status)
		return AssistantReply{RunID: run.ID}, failure
	}

	text, err := a.latestReply(ctx, threadID)
	if err != nil {
		return AssistantReply{RunID: run.ID}, err
	}
	return AssistantReply{RunID: run.ID, Text: text}, nil
}

func isPending(status openai.RunStatus) bool {
	switch status {
	case openai.RunStatusQueued, openai.RunStatusInProgress, openai.RunStatusCancelling:
		return true
	}
	return false
}

func (a *OpenAIAssistant) awaitRun(ctx context.Context, threadID string, run openai.Run) (openai.Run, error) {
	interval := a.loop.PollInterval
	for isPending(run.Status) {
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return run, a.pollError(ctx, run, ctx.Err())
		case <-timer.C:
		}

		next, err := a.api.RetrieveRun(ctx, threadID, run.ID)
		if err != nil {
			return run, a.pollError(ctx, run, err)
		}
		run = next
		interval = a.loop.next(interval)
	}
	return run, nil
}

func (a *OpenAIAssistant) pollError(ctx context.Context, run openai.Run, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		a.logger.Error("run timed out", "run_id", run.ID, "status", run.Status, "timeout", a.loop.Timeout)
		return fmt.Errorf("run %s still %s after %s: %w", run.ID, run.Status, a.loop.Timeout, ErrRunTimeout)
	}
	return fmt.Errorf("retrieve run %s: %w", run.ID, err)
}

func (a *OpenAIAssistant) latestReply(ctx context.Context, threadID string) (string, error) {
	limit := 1
	order := "desc"
	list, err := a.api.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	if len(list.Messages) == 0 {
		return "", errors.New("assistant returned no messages")
	}
	text := messageText(list.Messages[0])
	if text == "" {
		return "", errors.New("assistant returned an empty reply")
	}
	return text, nil
}

// ListMessages returns the whole transcript, oldest first.
func (a *OpenAIAssistant) ListMessages(ctx context.Context, threadID string) ([]models.TranscriptMessage, error) {
	limit := listPageSize
	order := "asc"
	var after *string

	messages := make([]models.TranscriptMessage, 0)
	for {
		list, err := a.api.ListMessage(ctx, threadID, &limit, &order, after, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		for _, m := range list.Messages {
			messages = append(messages, models.TranscriptMessage{
				ID:        m.ID,
				Role:      m.Role,
				Content:   messageText(m),
				CreatedAt: time.Unix(int64(m.CreatedAt), 0).UTC(),
			})
		}
		if !list.HasMore || list.LastID == nil || len(list.Messages) == 0 {
			return messages, nil
		}
		after = list.LastID
	}
}

func messageText(m openai.Message) string {
	parts := make([]string, 0, len(m.Content))
	for _, c := range m.Content {
		if c.Text != nil && c.Text.Value != "" {
			parts = append(parts, c.Text.Value)
		}
	}
	return strings.Join(parts, "\n")
}

var _ Assistant = (*OpenAIAssistant)(nil)
