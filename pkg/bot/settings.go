// Copyright 2024-2026 Aiku AI

package bot

import (
	"maunium.net/go/mautrix/id"

	"github.com/aiku/matrix-autoinvite-bot/pkg/config"
)

// Settings are the options shared by every account. A new value replaces
// the old one wholesale when the config file changes; a Settings value is
// never mutated after creation.
type Settings struct {
	TargetUser      id.UserID
	Debug           bool
	ControlRoomName string

	cfg *config.Config
}

// SettingsFromConfig takes the global fields of a post-processed config.
func SettingsFromConfig(cfg *config.Config) *Settings {
	return &Settings{
		TargetUser:      cfg.TargetUser,
		Debug:           cfg.Debug,
		ControlRoomName: cfg.ControlRoomName,
		cfg:             cfg,
	}
}

// AckMessage renders the notice posted after joining room.
func (s *Settings) AckMessage(room id.RoomID, self id.UserID) string {
	if s.cfg == nil {
		return ""
	}
	return s.cfg.FormatMessage(config.MessageParams{
		RoomID:     room,
		TargetUser: s.TargetUser,
		UserID:     self,
	})
}
