// Copyright 2024-2026 Aiku AI

package bot

import (
	"context"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/matrix-autoinvite-bot/pkg/store"
)

// ControlRoomResolver finds or creates the private room an account relays
// mentions to. One resolver serves one account.
//
// The stored mapping is trusted without asking the server whether the room
// still exists. If saving a freshly created room fails, the room is kept in
// memory for the rest of the run, but a later run will create another one.
type ControlRoomResolver struct {
	rooms *store.ControlRooms
	log   zerolog.Logger

	resolved id.RoomID
}

func NewControlRoomResolver(rooms *store.ControlRooms, log zerolog.Logger) *ControlRoomResolver {
	return &ControlRoomResolver{
		rooms: rooms,
		log:   log.With().Str("component", "control_room").Logger(),
	}
}

// Resolve returns the control room of the session's account, creating it
// with target invited if there is none yet.
func (r *ControlRoomResolver) Resolve(ctx context.Context, sess Session, target id.UserID, name string) (id.RoomID, error) {
	if r.resolved != "" {
		return r.resolved, nil
	}
	account := sess.UserID()
	room, ok, err := r.rooms.Get(ctx, account)
	if err != nil {
		r.log.Warn().Err(err).Msg("Failed to read control room mapping, creating a new room")
	} else if ok {
		r.resolved = room
		return room, nil
	}

	room, err = sess.CreateControlRoom(ctx, name, target)
	if err != nil {
		return "", err
	}
	r.log.Info().
		Str("room_id", room.String()).
		Str("target_user", target.String()).
		Msg("Created control room")
	r.resolved = room
	if err = r.rooms.Set(ctx, account, room); err != nil {
		r.log.Error().Err(err).
			Str("room_id", room.String()).
			Msg("Failed to save control room, a new one will be created on next start")
	}
	return room, nil
}
