package model

import "github.com/m-mizutani/goerr/v2"

var (
	// Configuration errors: user-actionable, never retried.
	ErrNoCredential = goerr.New("API key is not configured")
	ErrNoModel      = goerr.New("no model selected")

	// Validation errors: rejected before any I/O.
	ErrEmptyMessage     = goerr.New("message is empty")
	ErrInvalidParameter = goerr.New("invalid generation parameter")

	// Not-found errors: operation aborted, no partial mutation.
	ErrMessageNotFound    = goerr.New("message not found")
	ErrAgentNotFound      = goerr.New("agent not found")
	ErrAttachmentNotFound = goerr.New("attachment not found")

	// ErrLastAgent rejects deleting the sole remaining agent.
	ErrLastAgent = goerr.New("cannot delete the last agent")

	// ErrEmptyResponse means the provider returned no usable text.
	ErrEmptyResponse = goerr.New("empty response from model")

	// ErrBusy rejects a send/regenerate while another is in flight.
	ErrBusy = goerr.New("another generation is in progress")
)
