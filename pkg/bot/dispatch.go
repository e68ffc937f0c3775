// Copyright 2024-2026 Aiku AI

package bot

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"
)

// Outcome kinds.
const (
	KindInvite  = "invite"
	KindMention = "mention"
)

// Outcome is the result of handling one event. Err is a *HandlerError or nil.
type Outcome struct {
	Kind    string
	RoomID  id.RoomID
	EventID id.EventID
	Err     error
}

// Dispatcher routes the events of a batch to the handlers of one account.
type Dispatcher struct {
	session     Session
	settings    func() *Settings
	invites     *InviteHandler
	mentions    *MentionHandler
	controlRoom *ControlRoomResolver
	log         zerolog.Logger
}

func NewDispatcher(sess Session, settings func() *Settings, controlRoom *ControlRoomResolver, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		session:     sess,
		settings:    settings,
		invites:     NewInviteHandler(log),
		mentions:    NewMentionHandler(log),
		controlRoom: controlRoom,
		log:         log.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch handles every invite and every mention in batch, in order. One
// event failing, or panicking, does not stop the others. Messages that are
// not mentions produce no outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, batch *DeltaBatch) []Outcome {
	settings := d.settings()
	self := d.session.UserID()
	var outcomes []Outcome

	for _, room := range batch.Invites {
		outcomes = append(outcomes, d.guard(KindInvite, room, "", func() error {
			return d.invites.Handle(ctx, d.session, room, settings.TargetUser, settings.AckMessage(room, self))
		}))
	}

	for _, msg := range batch.Messages {
		if !IsMention(self, msg) {
			continue
		}
		outcomes = append(outcomes, d.guard(KindMention, msg.RoomID, msg.EventID, func() error {
			controlRoom, err := d.controlRoom.Resolve(ctx, d.session, settings.TargetUser, settings.ControlRoomName)
			if err != nil {
				return fmt.Errorf("failed to resolve control room: %w", err)
			}
			return d.mentions.Handle(ctx, d.session, msg, controlRoom, settings.Debug)
		}))
	}
	return outcomes
}

func (d *Dispatcher) guard(kind string, room id.RoomID, evt id.EventID, fn func() error) (out Outcome) {
	out = Outcome{Kind: kind, RoomID: room, EventID: evt}
	defer func() {
		if p := recover(); p != nil {
			d.log.Error().
				Str("room_id", room.String()).
				Str("event_id", evt.String()).
				Bytes("stack", debug.Stack()).
				Any("panic", p).
				Msg("Panic while handling event")
			out.Err = &HandlerError{Kind: kind, RoomID: room, EventID: evt, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	if err := fn(); err != nil {
		d.log.Error().Err(err).
			Str("kind", kind).
			Str("room_id", room.String()).
			Str("event_id", evt.String()).
			Msg("Failed to handle event")
		out.Err = &HandlerError{Kind: kind, RoomID: room, EventID: evt, Err: err}
	}
	return out
}
