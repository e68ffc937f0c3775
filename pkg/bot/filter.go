// Copyright 2024-2026 Aiku AI

package bot

import (
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
)

// excludeAll matches no events. An empty types list would be dropped by
// omitempty and filter nothing.
func excludeAll() *mautrix.FilterPart {
	return &mautrix.FilterPart{NotTypes: []event.Type{{Type: "*"}}}
}

// syncFilter restricts /sync to what the handlers use: room timelines carry
// only m.room.message, and presence, ephemeral and account data are dropped.
// Invites are not subject to room filters and always come through.
var syncFilter = &mautrix.Filter{
	AccountData: excludeAll(),
	Presence:    excludeAll(),
	Room: &mautrix.RoomFilter{
		AccountData: excludeAll(),
		Ephemeral:   excludeAll(),
		State: &mautrix.FilterPart{
			LazyLoadMembers: true,
		},
		Timeline: &mautrix.FilterPart{
			Types: []event.Type{event.EventMessage},
			Limit: 50,
		},
	},
}
