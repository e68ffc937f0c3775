// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/matrix-autoinvite-bot/pkg/config"
	"github.com/aiku/matrix-autoinvite-bot/pkg/store"
)

const (
	botUser   id.UserID = "@bot:example.org"
	ownerUser id.UserID = "@owner:example.org"
	aliceUser id.UserID = "@alice:example.org"
)

// sentNotice records one SendNotice call on a fakeSession.
type sentNotice struct {
	Room   id.RoomID
	Notice Notice
}

// fakeSession is an in-memory Session. Sync returns the queued batches in
// order; once they run out it calls onDrained (if set) and then blocks until
// the context is cancelled, or returns syncErr if that is set.
type fakeSession struct {
	mu sync.Mutex

	user      id.UserID
	batches   []*DeltaBatch
	syncErr   error
	onDrained func()
	// onSync runs inside Sync just before a batch is returned.
	onSync func(since string)

	syncSince []string
	filters   int
	joined    []id.RoomID
	members   map[id.RoomID][]id.UserID
	notices   []sentNotice
	created   []id.RoomID
	calls     []string

	filterErr   error
	joinErr     map[id.RoomID]error
	joinPanic   map[id.RoomID]bool
	inviteErr   error
	noticeErr   map[id.RoomID]error
	createErr   error
	createdName string
}

var _ Session = (*fakeSession)(nil)

func newFakeSession(user id.UserID, batches ...*DeltaBatch) *fakeSession {
	return &fakeSession{
		user:      user,
		batches:   batches,
		members:   make(map[id.RoomID][]id.UserID),
		joinErr:   make(map[id.RoomID]error),
		joinPanic: make(map[id.RoomID]bool),
		noticeErr: make(map[id.RoomID]error),
	}
}

func (f *fakeSession) UserID() id.UserID {
	return f.user
}

func (f *fakeSession) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeSession) CreateFilter(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("filter")
	f.filters++
	if f.filterErr != nil {
		return "", f.filterErr
	}
	return "filter1", nil
}

func (f *fakeSession) Sync(ctx context.Context, _ string, since string, _ time.Duration) (*DeltaBatch, error) {
	f.mu.Lock()
	f.record("sync")
	f.syncSince = append(f.syncSince, since)
	if len(f.batches) > 0 {
		batch := f.batches[0]
		f.batches = f.batches[1:]
		hook := f.onSync
		f.mu.Unlock()
		if hook != nil {
			hook(since)
		}
		return batch, nil
	}
	syncErr, drained := f.syncErr, f.onDrained
	f.mu.Unlock()
	if syncErr != nil {
		return nil, syncErr
	}
	if drained != nil {
		drained()
	}
	<-ctx.Done()
	return nil, &TransportError{Op: "sync", Err: ctx.Err()}
}

func (f *fakeSession) JoinRoom(_ context.Context, room id.RoomID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("join " + room.String())
	if f.joinPanic[room] {
		panic("join exploded")
	}
	if err := f.joinErr[room]; err != nil {
		return err
	}
	if !slices.Contains(f.joined, room) {
		f.joined = append(f.joined, room)
	}
	return nil
}

func (f *fakeSession) InviteUser(_ context.Context, room id.RoomID, user id.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("invite " + user.String())
	if f.inviteErr != nil {
		return f.inviteErr
	}
	if !slices.Contains(f.members[room], user) {
		f.members[room] = append(f.members[room], user)
	}
	return nil
}

func (f *fakeSession) SendNotice(_ context.Context, room id.RoomID, notice Notice) (id.EventID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("notice " + room.String())
	if err := f.noticeErr[room]; err != nil {
		return "", err
	}
	f.notices = append(f.notices, sentNotice{Room: room, Notice: notice})
	return id.EventID(fmt.Sprintf("$notice%d", len(f.notices))), nil
}

func (f *fakeSession) CreateControlRoom(_ context.Context, name string, invitee id.UserID) (id.RoomID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create " + invitee.String())
	if f.createErr != nil {
		return "", f.createErr
	}
	room := id.RoomID(fmt.Sprintf("!control%d:example.org", len(f.created)+1))
	f.created = append(f.created, room)
	f.createdName = name
	return room, nil
}

func (f *fakeSession) Notices() []sentNotice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.notices)
}

func (f *fakeSession) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// failingKV wraps a store and fails writes of selected keys.
type failingKV struct {
	store.Store
	mu       sync.Mutex
	failPut  map[string]error
	putCalls []string
}

func newFailingKV(failPut map[string]error) *failingKV {
	return &failingKV{Store: store.NewMemoryStore(), failPut: failPut}
}

func (f *failingKV) Put(ctx context.Context, account id.UserID, key, value string) error {
	f.mu.Lock()
	f.putCalls = append(f.putCalls, key+"="+value)
	err := f.failPut[key]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Put(ctx, account, key, value)
}

func testSettings(debug bool) func() *Settings {
	cfg := &config.Config{
		Message:         "Hello, I invited {{.TargetUser}}",
		TargetUser:      ownerUser,
		Debug:           debug,
		ControlRoomName: "Auto Invite Bot",
	}
	if err := cfg.PostProcess(); err != nil {
		panic(err)
	}
	settings := SettingsFromConfig(cfg)
	return func() *Settings { return settings }
}

func newTestDispatcher(sess Session, kv store.Store, debug bool) *Dispatcher {
	resolver := NewControlRoomResolver(store.NewControlRooms(kv), zerolog.Nop())
	return NewDispatcher(sess, testSettings(debug), resolver, zerolog.Nop())
}

// endpointCall records which API endpoints were hit during a test.
type endpointCall struct {
	Method string
	Path   string
	Body   string
}

// cannedResponse is a status code and JSON body.
type cannedResponse struct {
	Status int
	Body   any
}

// fakeHS is a test helper that wraps an httptest.Server simulating the
// parts of the Matrix client-server API the bot uses. Responses are matched
// by path suffix on the decoded request path.
type fakeHS struct {
	Server *httptest.Server

	mu    sync.Mutex
	calls []endpointCall

	// Responses maps a path suffix to a canned response. Unmatched requests
	// get an empty JSON object.
	Responses map[string]cannedResponse
}

func newFakeHS() *fakeHS {
	f := &fakeHS{Responses: make(map[string]cannedResponse)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	return f
}

func (f *fakeHS) Close() {
	f.Server.Close()
}

func (f *fakeHS) Respond(pathSuffix string, status int, body any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses[pathSuffix] = cannedResponse{Status: status, Body: body}
}

func (f *fakeHS) Calls() []endpointCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Call returns the first recorded call whose path ends with suffix.
func (f *fakeHS) Call(method, suffix string) (endpointCall, bool) {
	for _, c := range f.Calls() {
		if c.Method == method && strings.HasSuffix(c.Path, suffix) {
			return c, true
		}
	}
	return endpointCall{}, false
}

func (f *fakeHS) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.calls = append(f.calls, endpointCall{Method: r.Method, Path: r.URL.Path, Body: string(body)})
	var resp *cannedResponse
	longest := -1
	for suffix, canned := range f.Responses {
		if strings.HasSuffix(r.URL.Path, suffix) && len(suffix) > longest {
			c := canned
			resp, longest = &c, len(suffix)
		}
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if resp == nil {
		_, _ = w.Write([]byte("{}"))
		return
	}
	w.WriteHeader(resp.Status)
	_ = json.NewEncoder(w).Encode(resp.Body)
}
