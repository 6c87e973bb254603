// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/seed-foundation/seed/lib/clock"
	"github.com/seed-foundation/seed/lib/testutil"
	"github.com/seed-foundation/seed/wire"
)

// fakeStream captures outbound frames on a buffered channel and
// records closure.
type fakeStream struct {
	frames chan []byte

	mu       sync.Mutex
	closed   bool
	writeErr error
}

func newFakeStream() *fakeStream {
	return &fakeStream{frames: make(chan []byte, 64)}
}

func (s *fakeStream) WriteFrame(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	err := s.writeErr
	closed := s.closed
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if closed {
		return errors.New("stream closed")
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	select {
	case s.frames <- buf:
		return nil
	default:
		return errors.New("fake stream buffer full")
	}
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) failWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// credentialValidator accepts credentials of the form "ok:<principal>"
// and rejects everything else.
type credentialValidator struct{}

func (credentialValidator) Validate(ctx context.Context, credential []byte) (PrincipalID, error) {
	if p, ok := strings.CutPrefix(string(credential), "ok:"); ok {
		return PrincipalID(p), nil
	}
	return "", fmt.Errorf("credential %q: %w", credential, ErrRejected)
}

// fakeGateway is an in-memory store with controllable append failures.
type fakeGateway struct {
	mu          sync.Mutex
	members     map[GroupID]map[PrincipalID]struct{}
	history     map[GroupID][]StoredMessage
	seqs        map[GroupID]uint64
	byID        map[string]AppendResult
	users       map[PrincipalID]string
	appendCalls int
	failAppends int
	memberErr   error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		members: make(map[GroupID]map[PrincipalID]struct{}),
		history: make(map[GroupID][]StoredMessage),
		seqs:    make(map[GroupID]uint64),
		byID:    make(map[string]AppendResult),
		users:   make(map[PrincipalID]string),
	}
}

// failFirst makes the next n AppendMessage calls fail.
func (g *fakeGateway) failFirst(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.appendCalls = 0
	g.failAppends = n
}

func (g *fakeGateway) setMemberErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.memberErr = err
}

func (g *fakeGateway) setMembers(group GroupID, principals ...PrincipalID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set := make(map[PrincipalID]struct{}, len(principals))
	for _, p := range principals {
		set[p] = struct{}{}
	}
	g.members[group] = set
}

// seedHistory fills a group's history with n numbered messages.
func (g *fakeGateway) seedHistory(group GroupID, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := 1; i <= n; i++ {
		g.seqs[group]++
		g.history[group] = append(g.history[group], StoredMessage{
			Group:     group,
			GroupSeq:  g.seqs[group],
			ID:        fmt.Sprintf("seed:%d", i),
			Origin:    "seeder",
			Payload:   []byte(fmt.Sprintf("historic %d", i)),
			CreatedAt: time.Unix(int64(1700000000+i), 0),
		})
	}
}

func (g *fakeGateway) appendCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, msgs := range g.history {
		n += len(msgs)
	}
	return n
}

func (g *fakeGateway) attempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.appendCalls
}

func (g *fakeGateway) isMember(group GroupID, principal PrincipalID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.members[group][principal]
	return ok
}

func (g *fakeGateway) userName(principal PrincipalID) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	name, ok := g.users[principal]
	return name, ok
}

func (g *fakeGateway) AppendMessage(ctx context.Context, msg Message) (AppendResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.appendCalls++
	if g.appendCalls <= g.failAppends {
		return AppendResult{}, errors.New("store offline")
	}
	key := msg.ID.String()
	if res, ok := g.byID[key]; ok {
		res.Duplicate = true
		return res, nil
	}
	group := msg.Dest.Group
	g.seqs[group]++
	res := AppendResult{GroupSeq: g.seqs[group]}
	g.byID[key] = res
	g.history[group] = append(g.history[group], StoredMessage{
		Group:     group,
		GroupSeq:  res.GroupSeq,
		ID:        key,
		Origin:    msg.Origin,
		Payload:   msg.Payload,
		CreatedAt: msg.CreatedAt,
	})
	return res, nil
}

func (g *fakeGateway) FetchHistory(ctx context.Context, group GroupID, cursor uint64, limit int) ([]StoredMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var page []StoredMessage
	for _, sm := range g.history[group] {
		if sm.GroupSeq <= cursor {
			continue
		}
		page = append(page, sm)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func (g *fakeGateway) UpsertUser(ctx context.Context, principal PrincipalID, displayName string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.users[principal] = displayName
	return nil
}

func (g *fakeGateway) ListGroupMembers(ctx context.Context, group GroupID) ([]PrincipalID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.memberErr != nil {
		return nil, g.memberErr
	}
	var out []PrincipalID
	for p := range g.members[group] {
		out = append(out, p)
	}
	return out, nil
}

func (g *fakeGateway) JoinGroup(ctx context.Context, group GroupID, principal PrincipalID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	set := g.members[group]
	if set == nil {
		set = make(map[PrincipalID]struct{})
		g.members[group] = set
	}
	set[principal] = struct{}{}
	return nil
}

func (g *fakeGateway) LeaveGroup(ctx context.Context, group GroupID, principal PrincipalID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members[group], principal)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestHub builds a hub on a fake clock and fake collaborators, with
// shutdown on cleanup.
func newTestHub(t *testing.T, cfg Config) (*Hub, *fakeGateway, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(time.Unix(1700000000, 0))
	gw := newFakeGateway()
	hub, err := NewHub(cfg, gw, credentialValidator{}, clk, discardLogger())
	if err != nil {
		t.Fatalf("NewHub: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hub.Shutdown(ctx)
	})
	return hub, gw, clk
}

// connectActive establishes a connection with a transport-supplied
// credential and waits for the auth ack.
func connectActive(t *testing.T, hub *Hub, principal string) (SessionID, *fakeStream) {
	t.Helper()
	stream := newFakeStream()
	id, err := hub.ConnectionEstablished(stream, []byte("ok:"+principal))
	if err != nil {
		t.Fatalf("ConnectionEstablished: %v", err)
	}
	env := nextEnvelope(t, stream)
	if env.Kind != wire.KindAck || env.Ack.Op != "auth" || !env.Ack.OK {
		t.Fatalf("expected auth ack, got kind %s: %+v", env.Kind, env)
	}
	if got, want := env.Ack.Principal, principal; got != want {
		t.Fatalf("auth ack principal = %q, want %q", got, want)
	}
	return id, stream
}

// encodeFrame encodes env or fails the test.
func encodeFrame(t *testing.T, env wire.Envelope) []byte {
	t.Helper()
	frame, err := wire.Encode(env)
	if err != nil {
		t.Fatalf("encode %s envelope: %v", env.Kind, err)
	}
	return frame
}

// nextEnvelope decodes the next outbound frame on stream.
func nextEnvelope(t *testing.T, stream *fakeStream) wire.Envelope {
	t.Helper()
	frame := testutil.RequireReceive(t, stream.frames, 5*time.Second, "outbound frame")
	env, err := wire.Decode(frame, 0)
	if err != nil {
		t.Fatalf("decode outbound frame %q: %v", frame, err)
	}
	return env
}

// expectSilence fails if stream emits a frame within the window.
func expectSilence(t *testing.T, stream *fakeStream, window time.Duration) {
	t.Helper()
	select {
	case frame := <-stream.frames:
		t.Fatalf("unexpected outbound frame %q", frame)
	case <-time.After(window):
	}
}

// lookupActor fetches the live actor for id, failing if absent.
func lookupActor(t *testing.T, hub *Hub, id SessionID) *Actor {
	t.Helper()
	a, ok := hub.core.registry.Lookup(id)
	if !ok {
		t.Fatalf("session %s not registered", id)
	}
	return a
}

// waitGone waits for the actor to exit and asserts it left the
// registry.
func waitGone(t *testing.T, hub *Hub, a *Actor) {
	t.Helper()
	testutil.RequireClosed(t, a.Done(), 5*time.Second, "actor exit")
	if _, ok := hub.core.registry.Lookup(a.ID()); ok {
		t.Fatalf("session %s still registered after exit", a.ID())
	}
}

// waitAbsent polls until id has left the registry. Use it when the
// actor may already have exited before a handle could be grabbed.
func waitAbsent(t *testing.T, hub *Hub, id SessionID) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := hub.core.registry.Lookup(id); !ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("session %s still registered", id)
}
