// Copyright 2024-2026 Aiku AI

package bot

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// controlRoomPreset gives both members admin power and skips the join rules
// dance for the invitee.
const controlRoomPreset = "trusted_private_chat"

// MatrixSession implements Session on top of a mautrix client.
type MatrixSession struct {
	client *mautrix.Client
	log    zerolog.Logger
}

var _ Session = (*MatrixSession)(nil)

// NewMatrixSession wraps an already authenticated client.
func NewMatrixSession(client *mautrix.Client, log zerolog.Logger) *MatrixSession {
	return &MatrixSession{
		client: client,
		log:    log.With().Str("component", "matrix_session").Logger(),
	}
}

func (s *MatrixSession) UserID() id.UserID {
	return s.client.UserID
}

func (s *MatrixSession) CreateFilter(ctx context.Context) (string, error) {
	resp, err := s.client.CreateFilter(ctx, syncFilter)
	if err != nil {
		return "", &TransportError{Op: "create sync filter", Err: err}
	}
	return resp.FilterID, nil
}

func (s *MatrixSession) Sync(ctx context.Context, filterID, since string, timeout time.Duration) (*DeltaBatch, error) {
	resp, err := s.client.FullSyncRequest(ctx, mautrix.ReqSync{
		Timeout:  int(timeout.Milliseconds()),
		Since:    since,
		FilterID: filterID,
	})
	if err != nil {
		return nil, &TransportError{Op: "sync", Err: err}
	}
	return s.batchFromSync(resp), nil
}

// batchFromSync reduces a sync response to invites and message events.
// Rooms are visited in sorted order so dispatch order is stable.
func (s *MatrixSession) batchFromSync(resp *mautrix.RespSync) *DeltaBatch {
	batch := &DeltaBatch{NextBatch: resp.NextBatch}
	for roomID := range resp.Rooms.Invite {
		batch.Invites = append(batch.Invites, roomID)
	}
	slices.Sort(batch.Invites)

	joined := make([]id.RoomID, 0, len(resp.Rooms.Join))
	for roomID := range resp.Rooms.Join {
		joined = append(joined, roomID)
	}
	slices.Sort(joined)
	for _, roomID := range joined {
		for _, evt := range resp.Rooms.Join[roomID].Timeline.Events {
			msg, ok := s.parseMessage(roomID, evt)
			if ok {
				batch.Messages = append(batch.Messages, msg)
			}
		}
	}
	return batch
}

// parseMessage returns ok == false for anything that isn't a readable
// m.room.message, including redacted events.
func (s *MatrixSession) parseMessage(roomID id.RoomID, evt *event.Event) (MessageEvent, bool) {
	if evt == nil || evt.Type.Type != event.EventMessage.Type || evt.StateKey != nil {
		return MessageEvent{}, false
	}
	var content event.MessageEventContent
	if err := json.Unmarshal(evt.Content.VeryRaw, &content); err != nil {
		s.log.Debug().Err(err).
			Str("room_id", roomID.String()).
			Str("event_id", evt.ID.String()).
			Msg("Skipping message with unparseable content")
		return MessageEvent{}, false
	}
	if content.MsgType == "" && content.Body == "" {
		return MessageEvent{}, false
	}
	return MessageEvent{
		RoomID:        roomID,
		Sender:        evt.Sender,
		EventID:       evt.ID,
		Body:          content.Body,
		FormattedBody: content.FormattedBody,
	}, true
}

func (s *MatrixSession) JoinRoom(ctx context.Context, room id.RoomID) error {
	_, err := s.client.JoinRoomByID(ctx, room)
	if err != nil && !isAlreadyMember(err) {
		return &TransportError{Op: "join room", Err: err}
	}
	return nil
}

func (s *MatrixSession) InviteUser(ctx context.Context, room id.RoomID, user id.UserID) error {
	_, err := s.client.InviteUser(ctx, room, &mautrix.ReqInviteUser{UserID: user})
	if err != nil {
		if isAlreadyMember(err) {
			s.log.Debug().
				Str("room_id", room.String()).
				Str("user_id", user.String()).
				Msg("User already in room, treating invite as done")
			return nil
		}
		return &TransportError{Op: "invite user", Err: err}
	}
	return nil
}

func (s *MatrixSession) SendNotice(ctx context.Context, room id.RoomID, notice Notice) (id.EventID, error) {
	content := &event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    notice.Body,
	}
	if notice.FormattedBody != "" {
		content.Format = event.FormatHTML
		content.FormattedBody = notice.FormattedBody
	}
	if notice.ReplyTo != "" {
		content.RelatesTo = &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: notice.ReplyTo},
		}
	}
	resp, err := s.client.SendMessageEvent(ctx, room, event.EventMessage, content)
	if err != nil {
		return "", &TransportError{Op: "send notice", Err: err}
	}
	return resp.EventID, nil
}

func (s *MatrixSession) CreateControlRoom(ctx context.Context, name string, invitee id.UserID) (id.RoomID, error) {
	resp, err := s.client.CreateRoom(ctx, &mautrix.ReqCreateRoom{
		Name:     name,
		Preset:   controlRoomPreset,
		IsDirect: true,
		Invite:   []id.UserID{invitee},
	})
	if err != nil {
		return "", &TransportError{Op: "create control room", Err: err}
	}
	return resp.RoomID, nil
}

// isAlreadyMember matches the M_FORBIDDEN responses servers give when the
// membership being requested is already in place.
func isAlreadyMember(err error) bool {
	var respErr mautrix.RespError
	if !errors.As(err, &respErr) || respErr.ErrCode != mautrix.MForbidden.ErrCode {
		return false
	}
	return strings.Contains(strings.ToLower(respErr.Err), "already")
}
