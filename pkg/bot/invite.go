// Copyright 2024-2026 Aiku AI

package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"
)

// InviteHandler accepts room invites on behalf of an account.
type InviteHandler struct {
	log zerolog.Logger
}

func NewInviteHandler(log zerolog.Logger) *InviteHandler {
	return &InviteHandler{log: log.With().Str("component", "invite_handler").Logger()}
}

// Handle joins room, invites target and posts ack as a notice.
//
// If the join fails nothing else is attempted. A failed invite does not
// prevent the notice. Every failed step is part of the returned error.
func (h *InviteHandler) Handle(ctx context.Context, sess Session, room id.RoomID, target id.UserID, ack string) error {
	log := h.log.With().Str("room_id", room.String()).Logger()
	log.Info().Msg("Invited to room")

	if err := sess.JoinRoom(ctx, room); err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}
	log.Info().Msg("Joined room")

	var errs []error
	if err := sess.InviteUser(ctx, room, target); err != nil {
		log.Error().Err(err).Str("target_user", target.String()).Msg("Failed to invite target user")
		errs = append(errs, fmt.Errorf("failed to invite %s: %w", target, err))
	} else {
		log.Info().Str("target_user", target.String()).Msg("Invited target user")
	}

	if ack == "" {
		log.Debug().Msg("Acknowledgement message is empty, not posting it")
	} else if _, err := sess.SendNotice(ctx, room, Notice{Body: ack}); err != nil {
		log.Error().Err(err).Msg("Failed to post acknowledgement")
		errs = append(errs, fmt.Errorf("failed to post acknowledgement: %w", err))
	}
	return errors.Join(errs...)
}
