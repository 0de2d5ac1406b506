package conversation

import "errors"

var (
	// ErrNoConversation reports a command that needs an open conversation;
	// such commands are dropped with a warning.
	ErrNoConversation = errors.New("no open conversation")
	// ErrSuperseded settles an Open whose conversation was replaced by a
	// newer Open before its history fetch finished.
	ErrSuperseded = errors.New("conversation superseded")
	// ErrNotRetryable is returned when retrying a message that is not failed.
	ErrNotRetryable = errors.New("message is not in a retryable state")
	// ErrClosed is returned when the session has been shut down.
	ErrClosed = errors.New("session closed")
)
