// Copyright 2024-2026 Aiku AI

package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/format"
	"maunium.net/go/mautrix/id"
)

// DebugReply is posted in reply to a mention when debug mode is on.
const DebugReply = "Mention relayed."

// IsMention reports whether msg refers to own.
//
// With a formatted body the full user ID must appear in it. Without one, the
// localpart alone is enough in the plain body. Both comparisons fold the case
// of both sides, so an uppercase localpart matches lowercase text.
// Messages sent by own never count.
func IsMention(own id.UserID, msg MessageEvent) bool {
	if msg.Sender == own {
		return false
	}
	if msg.FormattedBody != "" {
		return strings.Contains(strings.ToLower(msg.FormattedBody), strings.ToLower(own.String()))
	}
	return strings.Contains(strings.ToLower(msg.Body), strings.ToLower(Localpart(own)))
}

// Localpart returns the part of a user ID between the leading @ and the
// first colon.
func Localpart(user id.UserID) string {
	local := strings.TrimPrefix(user.String(), "@")
	if idx := strings.IndexByte(local, ':'); idx >= 0 {
		local = local[:idx]
	}
	return local
}

// RelayBody is the plain text of a relayed mention.
func RelayBody(msg MessageEvent) string {
	return fmt.Sprintf("> <%s> %s\n\n Mention in %s by %s", msg.Sender, msg.Body, msg.RoomID, msg.Sender)
}

// RelayNotice renders RelayBody as markdown for the HTML body. Raw HTML in
// the relayed message is escaped.
func RelayNotice(msg MessageEvent) Notice {
	body := RelayBody(msg)
	rendered := format.RenderMarkdown(body, true, false)
	return Notice{Body: body, FormattedBody: rendered.FormattedBody}
}

// MentionHandler relays mentions to the control room.
type MentionHandler struct {
	log zerolog.Logger
}

func NewMentionHandler(log zerolog.Logger) *MentionHandler {
	return &MentionHandler{log: log.With().Str("component", "mention_handler").Logger()}
}

// Handle posts the relay notice to controlRoom and, if debug is set, a reply
// to the mention in its own room. Message bodies are never interpreted as
// commands.
func (h *MentionHandler) Handle(ctx context.Context, sess Session, msg MessageEvent, controlRoom id.RoomID, debug bool) error {
	log := h.log.With().
		Str("room_id", msg.RoomID.String()).
		Str("event_id", msg.EventID.String()).
		Str("sender", msg.Sender.String()).
		Logger()

	var errs []error
	if _, err := sess.SendNotice(ctx, controlRoom, RelayNotice(msg)); err != nil {
		errs = append(errs, fmt.Errorf("failed to relay to control room: %w", err))
	} else {
		log.Info().Str("control_room", controlRoom.String()).Msg("Relayed mention")
	}

	if debug {
		_, err := sess.SendNotice(ctx, msg.RoomID, Notice{Body: DebugReply, ReplyTo: msg.EventID})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to reply in source room: %w", err))
		}
	}
	return errors.Join(errs...)
}
