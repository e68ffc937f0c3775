// Copyright 2024-2026 Aiku AI

package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/matrix-autoinvite-bot/pkg/config"
	"github.com/aiku/matrix-autoinvite-bot/pkg/store"
)

// LoginFunc turns an account into a session.
type LoginFunc func(ctx context.Context, acc config.Account, log zerolog.Logger) (Session, error)

// MatrixLogin is the LoginFunc used outside tests.
func MatrixLogin(ctx context.Context, acc config.Account, log zerolog.Logger) (Session, error) {
	sess, err := Login(ctx, acc, log)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// AccountResult is how one account's loop ended. Err is nil for a clean
// shutdown.
type AccountResult struct {
	UserID id.UserID
	Err    error
}

// Supervisor runs one sync loop per configured account.
type Supervisor struct {
	accounts    []config.Account
	kv          store.Store
	status      *StatusRegistry
	syncTimeout time.Duration
	login       LoginFunc
	log         zerolog.Logger

	settings atomic.Pointer[Settings]
}

func NewSupervisor(cfg *config.Config, kv store.Store, status *StatusRegistry, login LoginFunc, log zerolog.Logger) *Supervisor {
	s := &Supervisor{
		accounts:    slices.Clone(cfg.Servers),
		kv:          kv,
		status:      status,
		syncTimeout: cfg.SyncTimeout,
		login:       login,
		log:         log.With().Str("component", "supervisor").Logger(),
	}
	s.settings.Store(SettingsFromConfig(cfg))
	return s
}

// Settings returns the settings currently in effect.
func (s *Supervisor) Settings() *Settings {
	return s.settings.Load()
}

// UpdateSettings applies the global options of a reloaded config. Batches
// already being dispatched keep the settings they started with. Account
// changes are not applied to running loops.
func (s *Supervisor) UpdateSettings(cfg *config.Config) {
	s.settings.Store(SettingsFromConfig(cfg))
	s.log.Info().
		Str("target_user", cfg.TargetUser.String()).
		Bool("debug", cfg.Debug).
		Msg("Applied new settings")
	if !slices.Equal(s.accounts, cfg.Servers) {
		s.log.Warn().Msg("Account list changed, restart to apply")
	}
}

// Run starts every account and blocks until all of them have stopped. A
// failing account never stops the others; the result of each is returned
// in config order.
func (s *Supervisor) Run(ctx context.Context) []AccountResult {
	results := make([]AccountResult, len(s.accounts))
	var g errgroup.Group
	for i, acc := range s.accounts {
		results[i].UserID = acc.UserID
		g.Go(func() error {
			results[i].Err = s.runAccount(ctx, acc)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Supervisor) runAccount(ctx context.Context, acc config.Account) (err error) {
	log := s.log.With().Str("user_id", acc.UserID.String()).Logger()
	defer func() {
		if p := recover(); p != nil {
			log.Error().Bytes("stack", debug.Stack()).Any("panic", p).Msg("Panic in account loop")
			err = fmt.Errorf("panic: %v", p)
			s.status.SetState(acc.UserID, StateFailed, err)
		}
	}()

	s.status.SetState(acc.UserID, StateAuthenticating, nil)
	sess, err := s.login(ctx, acc, log)
	if err != nil {
		if ctx.Err() != nil {
			s.status.SetState(acc.UserID, StateStopped, nil)
			return nil
		}
		log.Error().Err(err).Msg("Skipping account")
		s.status.SetState(acc.UserID, StateFailed, err)
		return err
	}
	log.Info().Msg("Authenticated")

	resolver := NewControlRoomResolver(store.NewControlRooms(s.kv), log)
	dispatcher := NewDispatcher(sess, s.Settings, resolver, log)
	loop := NewSyncLoop(sess, store.NewCursorStore(s.kv), dispatcher, s.status, s.syncTimeout, log)
	if err = loop.Run(ctx); err != nil {
		var transportErr *TransportError
		if errors.As(err, &transportErr) {
			log.Error().Err(err).Msg("Sync failed, account stopped")
		} else {
			log.Error().Err(err).Msg("Account loop failed")
		}
		s.status.SetState(acc.UserID, StateFailed, err)
		return err
	}
	s.status.SetState(acc.UserID, StateStopped, nil)
	return nil
}
