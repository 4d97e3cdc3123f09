package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport wraps any network or push-transport failure. It is non-fatal.
	ErrTransport = errors.New("transport failure")
	// ErrUnauthorized is returned when the server refuses the bearer token.
	ErrUnauthorized = errors.New("not authorized")
	// ErrRejected is returned when the server answers with success=false.
	ErrRejected = errors.New("request rejected")
	// ErrRoomNotFound indicates the room id is unknown to the server.
	ErrRoomNotFound = errors.New("room not found")
	// ErrHostCannotJoin is returned when a participant tries to join a room they created.
	ErrHostCannotJoin = errors.New("you cannot participate in a room you created")
	// ErrPasswordRequired is returned when joining a private room without a password.
	ErrPasswordRequired = errors.New("password required for private room")
	// ErrSessionNotStarted is returned when a session operation is used before Start.
	ErrSessionNotStarted = errors.New("session not started")
	// ErrNoActiveQuestion is returned when answering while no question is open.
	ErrNoActiveQuestion = errors.New("no active question")
	// ErrAnswerLocked is returned when answering a question that is already locked.
	ErrAnswerLocked = errors.New("answer already locked for question")
	// ErrInvalidOption indicates the selected option index is out of range.
	ErrInvalidOption = errors.New("option index out of range")
	// ErrNotFound is returned by local stores on a key miss.
	ErrNotFound = errors.New("key not found")
)

// APIError carries the server's user-visible message alongside a sentinel cause.
type APIError struct {
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v (status %d)", e.Err, e.Status)
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// UserMessage returns the text a view should show for err, falling back to fallback.
func UserMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if errors.Is(err, ErrTransport) {
		return fallback
	}
	if err != nil && !errors.Is(err, ErrRejected) {
		return err.Error()
	}
	return fallback
}
