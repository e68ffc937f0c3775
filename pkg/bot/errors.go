// Copyright 2024-2026 Aiku AI

package bot

import (
	"errors"
	"fmt"

	"maunium.net/go/mautrix/id"
)

// ErrNoCredentials is wrapped in an AuthError when an account has neither an
// access token nor a password.
var ErrNoCredentials = errors.New("please provide either a password or an access_token")

// AuthError means the account could not get a session. The account is skipped.
type AuthError struct {
	UserID id.UserID
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("failed to authenticate %s: %v", e.UserID, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// TransportError is a failed request to the homeserver. Op names the request.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HandlerError is a failure while handling a single event. It never stops
// the rest of the batch.
type HandlerError struct {
	Kind    string
	RoomID  id.RoomID
	EventID id.EventID
	Err     error
}

func (e *HandlerError) Error() string {
	if e.EventID != "" {
		return fmt.Sprintf("%s handler failed for %s in %s: %v", e.Kind, e.EventID, e.RoomID, e.Err)
	}
	return fmt.Sprintf("%s handler failed in %s: %v", e.Kind, e.RoomID, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
