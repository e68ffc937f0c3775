// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bot

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"
)

// AccountState is where an account is in its lifecycle.
type AccountState string

const (
	StateAuthenticating AccountState = "authenticating"
	StateSyncing        AccountState = "syncing"
	StateFailed         AccountState = "failed"
	StateStopped        AccountState = "stopped"
)

// AccountStatus is the externally visible state of one account.
type AccountStatus struct {
	UserID    id.UserID    `json:"user_id"`
	State     AccountState `json:"state"`
	Cursor    string       `json:"cursor,omitempty"`
	LastError string       `json:"last_error,omitempty"`
	Invites   int          `json:"invites_handled"`
	Mentions  int          `json:"mentions_relayed"`
	Failures  int          `json:"handler_failures"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// StatusRegistry collects AccountStatus values from all sync loops.
type StatusRegistry struct {
	mu       sync.RWMutex
	accounts map[id.UserID]*AccountStatus
	now      func() time.Time
}

func NewStatusRegistry() *StatusRegistry {
	return &StatusRegistry{
		accounts: make(map[id.UserID]*AccountStatus),
		now:      time.Now,
	}
}

// update must be called with mu held.
func (sr *StatusRegistry) update(user id.UserID) *AccountStatus {
	st, ok := sr.accounts[user]
	if !ok {
		st = &AccountStatus{UserID: user}
		sr.accounts[user] = st
	}
	st.UpdatedAt = sr.now()
	return st
}

func (sr *StatusRegistry) SetState(user id.UserID, state AccountState, err error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	st := sr.update(user)
	st.State = state
	if err != nil {
		st.LastError = err.Error()
	}
}

func (sr *StatusRegistry) SetCursor(user id.UserID, cursor string) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.update(user).Cursor = cursor
}

// Record counts the outcomes of one dispatched batch.
func (sr *StatusRegistry) Record(user id.UserID, outcomes []Outcome) {
	if len(outcomes) == 0 {
		return
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	st := sr.update(user)
	for _, out := range outcomes {
		if out.Err != nil {
			st.Failures++
			st.LastError = out.Err.Error()
			continue
		}
		switch out.Kind {
		case KindInvite:
			st.Invites++
		case KindMention:
			st.Mentions++
		}
	}
}

// Get returns a copy of one account's status.
func (sr *StatusRegistry) Get(user id.UserID) (AccountStatus, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	st, ok := sr.accounts[user]
	if !ok {
		return AccountStatus{}, false
	}
	return *st, true
}

// Snapshot returns copies of all statuses sorted by user ID.
func (sr *StatusRegistry) Snapshot() []AccountStatus {
	sr.mu.RLock()
	out := make([]AccountStatus, 0, len(sr.accounts))
	for _, st := range sr.accounts {
		out = append(out, *st)
	}
	sr.mu.RUnlock()
	slices.SortFunc(out, func(a, b AccountStatus) int {
		return cmp.Compare(a.UserID, b.UserID)
	})
	return out
}

// HandleStatus is an HTTP handler for GET /api/status.
func (sr *StatusRegistry) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := map[string]any{
		"accounts": sr.Snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Failed to write status response")
	}
}

// ServeStatusAPI serves the status API on addr until ctx is done.
func ServeStatusAPI(ctx context.Context, addr string, sr *StatusRegistry, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", sr.HandleStatus)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return log.WithContext(context.Background())
		},
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", addr).Msg("Starting status API")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
