package services

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownConversation is returned for ids never issued by StartConversation.
	ErrUnknownConversation = errors.New("unknown conversation")

	// ErrAddressNotValidated is returned when a chat turn arrives before the
	// conversation's address has been validated.
	ErrAddressNotValidated = errors.New("address validation is required before chatting")

	ErrEmptyMessage = errors.New("message must not be empty")

	// ErrLocationNotFound covers every validation failure, including
	// transport errors talking to the geocoding provider.
	ErrLocationNotFound = errors.New("location not found")

	// ErrRunTimeout is returned when an assistant run does not reach a
	// terminal status within the configured wait.
	ErrRunTimeout = errors.New("assistant run timed out")
)

// RunFailure reports an assistant run that ended in a terminal status other
// than completed.
type RunFailure struct {
	RunID   string
	Status  string
	Message string
}

func (e *RunFailure) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("assistant run %s ended with status %s: %s", e.RunID, e.Status, e.Message)
	}
	return fmt.Sprintf("assistant run %s ended with status %s", e.RunID, e.Status)
}

// IsClientError reports whether err is caused by the caller's request or
// conversation state rather than by an upstream provider.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnknownConversation) ||
		errors.Is(err, ErrAddressNotValidated) ||
		errors.Is(err, ErrEmptyMessage)
}
