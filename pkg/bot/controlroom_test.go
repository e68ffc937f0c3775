// Copyright 2024-2026 Aiku AI

package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aiku/matrix-autoinvite-bot/pkg/store"
)

func TestControlRoomCreatedOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := store.NewMemoryStore()
	sess := newFakeSession(botUser)
	r := NewControlRoomResolver(store.NewControlRooms(kv), zerolog.Nop())

	first, err := r.Resolve(ctx, sess, ownerUser, "Relay")
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	second, err := r.Resolve(ctx, sess, ownerUser, "Relay")
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if first != second {
		t.Errorf("Resolve returned %s then %s", first, second)
	}
	if len(sess.created) != 1 {
		t.Errorf("created %d rooms, want 1", len(sess.created))
	}
	if sess.createdName != "Relay" {
		t.Errorf("room name = %q", sess.createdName)
	}

	// A fresh resolver, as after a restart, reads the saved mapping.
	restarted := NewControlRoomResolver(store.NewControlRooms(kv), zerolog.Nop())
	third, err := restarted.Resolve(ctx, sess, ownerUser, "Relay")
	if err != nil {
		t.Fatalf("Resolve after restart: %v", err)
	}
	if third != first || len(sess.created) != 1 {
		t.Errorf("restart resolved %s with %d creates, want %s with 1", third, len(sess.created), first)
	}
}

func TestControlRoomExistingMappingTrusted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rooms := store.NewControlRooms(store.NewMemoryStore())
	if err := rooms.Set(ctx, botUser, "!existing:example.org"); err != nil {
		t.Fatal(err)
	}
	sess := newFakeSession(botUser)
	r := NewControlRoomResolver(rooms, zerolog.Nop())

	room, err := r.Resolve(ctx, sess, ownerUser, "Relay")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if room != "!existing:example.org" {
		t.Errorf("room = %s", room)
	}
	if len(sess.Calls()) != 0 {
		t.Errorf("no server calls expected, got %v", sess.Calls())
	}
}

func TestControlRoomPersistFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := newFailingKV(map[string]error{store.KeyControlRoom: errors.New("read-only fs")})
	sess := newFakeSession(botUser)
	r := NewControlRoomResolver(store.NewControlRooms(kv), zerolog.Nop())

	room, err := r.Resolve(ctx, sess, ownerUser, "Relay")
	if err != nil {
		t.Fatalf("Resolve should succeed when only saving fails: %v", err)
	}
	again, _ := r.Resolve(ctx, sess, ownerUser, "Relay")
	if again != room || len(sess.created) != 1 {
		t.Errorf("room should be kept for this run, got %s with %d creates", again, len(sess.created))
	}

	// Known gap: the next run has no mapping and creates a second room.
	restarted := NewControlRoomResolver(store.NewControlRooms(kv), zerolog.Nop())
	if _, err = restarted.Resolve(ctx, sess, ownerUser, "Relay"); err != nil {
		t.Fatal(err)
	}
	if len(sess.created) != 2 {
		t.Errorf("created %d rooms, want 2", len(sess.created))
	}
}

func TestControlRoomCreateFailure(t *testing.T) {
	t.Parallel()
	sess := newFakeSession(botUser)
	sess.createErr = &TransportError{Op: "create control room", Err: errors.New("boom")}
	kv := store.NewMemoryStore()
	r := NewControlRoomResolver(store.NewControlRooms(kv), zerolog.Nop())

	if _, err := r.Resolve(context.Background(), sess, ownerUser, "Relay"); err == nil {
		t.Fatal("expected error")
	}
	if _, ok, _ := kv.Get(context.Background(), botUser, store.KeyControlRoom); ok {
		t.Error("nothing should be saved when creation fails")
	}
}
