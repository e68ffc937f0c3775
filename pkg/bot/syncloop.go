// Copyright 2024-2026 Aiku AI

package bot

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/matrix-autoinvite-bot/pkg/store"
)

// SyncLoop pulls batches for one account and hands them to a Dispatcher.
//
// Each iteration is strictly sequential: fetch, save the new cursor,
// dispatch, then fetch again. The loop is the only writer of the account's
// cursor.
type SyncLoop struct {
	session    Session
	cursors    *store.CursorStore
	dispatcher *Dispatcher
	status     *StatusRegistry
	timeout    time.Duration
	log        zerolog.Logger

	cursor string
}

func NewSyncLoop(sess Session, cursors *store.CursorStore, dispatcher *Dispatcher, status *StatusRegistry, timeout time.Duration, log zerolog.Logger) *SyncLoop {
	return &SyncLoop{
		session:    sess,
		cursors:    cursors,
		dispatcher: dispatcher,
		status:     status,
		timeout:    timeout,
		log:        log.With().Str("component", "sync_loop").Logger(),
	}
}

// Cursor is the last cursor returned by the server.
func (l *SyncLoop) Cursor() string {
	return l.cursor
}

// Run syncs until ctx is cancelled, in which case it returns nil, or until
// a sync request fails, in which case the *TransportError is returned.
//
// Without a saved cursor the first batch is an initial sync: its invites are
// handled but its timeline messages are not, so old mentions are not
// relayed again.
func (l *SyncLoop) Run(ctx context.Context) error {
	account := l.session.UserID()
	cursor, ok, err := l.cursors.Load(ctx, account)
	if err != nil {
		l.log.Warn().Err(err).Msg("Failed to load sync cursor, starting from scratch")
	}
	initial := !ok
	l.cursor = cursor
	if initial {
		l.log.Info().Msg("No saved cursor, doing initial sync")
	} else {
		l.log.Info().Str("since", cursor).Msg("Resuming sync")
	}

	filterID, err := l.session.CreateFilter(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		l.log.Warn().Err(err).Msg("Failed to upload sync filter, syncing unfiltered")
	}

	l.status.SetState(account, StateSyncing, nil)
	for {
		batch, err := l.session.Sync(ctx, filterID, l.cursor, l.timeout)
		if err != nil {
			if ctx.Err() != nil {
				l.log.Info().Msg("Sync loop stopped")
				return nil
			}
			return err
		}

		if err = l.cursors.Save(ctx, account, batch.NextBatch); err != nil {
			l.log.Warn().Err(err).
				Str("next_batch", batch.NextBatch).
				Msg("Failed to save sync cursor, events may be handled again after a restart")
		}
		l.cursor = batch.NextBatch
		l.status.SetCursor(account, batch.NextBatch)

		if initial {
			if len(batch.Messages) > 0 {
				l.log.Debug().Int("messages", len(batch.Messages)).Msg("Not dispatching messages from initial sync")
			}
			batch.Messages = nil
			initial = false
		}
		if len(batch.Invites) == 0 && len(batch.Messages) == 0 {
			continue
		}
		l.log.Debug().
			Int("invites", len(batch.Invites)).
			Int("messages", len(batch.Messages)).
			Msg("Dispatching batch")
		l.status.Record(account, l.dispatcher.Dispatch(ctx, batch))
	}
}
