package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.CreateSession(ctx, "burrow.reply.abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == 0 {
		t.Error("session id is zero")
	}

	if err := store.EndSession(ctx, id); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestInsertAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sessionID, err := store.CreateSession(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records := []*Record{
		{
			SessionID:   sessionID,
			Destination: "greet",
			Body:        []byte("hi"),
			ContentType: "text/plain",
			Headers:     map[string]string{"k": "v"},
			MessageID:   "m-1",
			Timestamp:   time.Now(),
		},
		{
			SessionID:     sessionID,
			Destination:   "calc",
			Body:          []byte(`{"a":1}`),
			ContentType:   "application/json",
			CorrelationID: "c-1",
			ReplyTo:       "burrow.reply.abc",
			MessageID:     "m-2",
			Timestamp:     time.Now(),
		},
	}
	for _, rec := range records {
		if _, err := store.InsertMessage(ctx, rec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	msgs, err := store.ListBySession(ctx, sessionID, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	// Insertion order preserved
	if msgs[0].Destination != "greet" || msgs[1].Destination != "calc" {
		t.Errorf("order = %q, %q", msgs[0].Destination, msgs[1].Destination)
	}
	if string(msgs[0].Body) != "hi" {
		t.Errorf("body = %q, want %q", msgs[0].Body, "hi")
	}
	if !msgs[0].Headers.Valid || msgs[0].Headers.String != `{"k":"v"}` {
		t.Errorf("headers = %+v", msgs[0].Headers)
	}
	if !msgs[1].CorrelationID.Valid || msgs[1].CorrelationID.String != "c-1" {
		t.Errorf("correlation id = %+v", msgs[1].CorrelationID)
	}
	if msgs[0].CorrelationID.Valid {
		t.Error("plain message has a correlation id")
	}

	count, err := store.CountBySession(ctx, sessionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestListByDestination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sessionID, err := store.CreateSession(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, dest := range []string{"greet", "calc", "greet"} {
		if _, err := store.InsertMessage(ctx, &Record{SessionID: sessionID, Destination: dest}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	msgs, err := store.ListByDestination(ctx, sessionID, "greet")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("got %d messages on greet, want 2", len(msgs))
	}
}

func TestSessionsIsolated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	s1, err := store.CreateSession(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s2, err := store.CreateSession(ctx, "s2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := store.InsertMessage(ctx, &Record{SessionID: s1, Destination: "greet"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count, err := store.CountBySession(ctx, s2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("session 2 sees %d messages from session 1", count)
	}
}
