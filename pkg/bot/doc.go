// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package bot implements a Matrix account that accepts every invite it
// gets, pulls a supervising user into the room, and relays messages that
// mention it to a private control room.
//
// # Core Types
//
// [Supervisor] runs one [SyncLoop] per configured account. A failing account
// is logged and reported through the [StatusRegistry]; the others keep going.
//
// [SyncLoop] long-polls /sync through a [Session], saves the returned cursor
// and passes the batch to a [Dispatcher]. The cursor is saved before the
// batch is dispatched. A failed save is logged and the loop carries on.
//
// [Dispatcher] sends invites to the [InviteHandler] and mentions (see
// [IsMention]) to the [MentionHandler]. Each event is handled on its own; an
// error or panic while handling one event is turned into a [HandlerError]
// and the rest of the batch still runs.
//
// [ControlRoomResolver] looks up the control room of an account in the
// store and creates it on first use.
//
// # Sessions
//
// [Session] is the only way the core talks to a homeserver. [MatrixSession]
// implements it with mautrix. Joins and invites must be idempotent.
package bot
