// Copyright 2024-2026 Aiku AI

package bot

import (
	"context"
	"time"

	"maunium.net/go/mautrix/id"
)

// Session is an authenticated connection to one homeserver, acting as one
// account. The sync loop and the handlers only talk to the server through
// this interface, so tests can substitute a fake.
//
// JoinRoom and InviteUser must be idempotent: joining a room the account is
// already in, or inviting a user who is already joined or invited, returns
// nil.
type Session interface {
	UserID() id.UserID

	// CreateFilter uploads a sync filter and returns its ID.
	CreateFilter(ctx context.Context) (string, error)
	// Sync blocks until the server has new data for the account or the
	// timeout passes. An empty since requests an initial sync.
	Sync(ctx context.Context, filterID, since string, timeout time.Duration) (*DeltaBatch, error)

	JoinRoom(ctx context.Context, room id.RoomID) error
	InviteUser(ctx context.Context, room id.RoomID, user id.UserID) error
	// SendNotice posts an m.notice, as a reply if notice.ReplyTo is set.
	SendNotice(ctx context.Context, room id.RoomID, notice Notice) (id.EventID, error)
	// CreateControlRoom creates a private two-party room with invitee.
	CreateControlRoom(ctx context.Context, name string, invitee id.UserID) (id.RoomID, error)
}

// Notice is an outgoing m.notice message.
type Notice struct {
	Body          string
	FormattedBody string
	ReplyTo       id.EventID
}

// DeltaBatch is one incremental sync response reduced to what the bot acts on.
type DeltaBatch struct {
	NextBatch string
	Invites   []id.RoomID
	Messages  []MessageEvent
}

// MessageEvent is one m.room.message from a joined room's timeline.
type MessageEvent struct {
	RoomID        id.RoomID
	Sender        id.UserID
	EventID       id.EventID
	Body          string
	FormattedBody string
}
