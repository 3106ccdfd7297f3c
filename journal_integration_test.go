package burrow

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/epalmerini/burrow/journal"
)

func TestBroker_JournalsPublishedEnvelopes(t *testing.T) {
	store, err := journal.NewStore(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	b, err := New(WithJournal(store))
	if err != nil {
		t.Fatalf("failed to construct broker: %v", err)
	}
	if b.SessionID() == 0 {
		t.Fatal("journaling broker has no session")
	}

	if err := b.Subscribe("greet", upperHandler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	if _, err := b.Publish(ctx, "greet", "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := b.Publish(ctx, "greet", "ho", ExpectReply()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sessionID := b.SessionID()

	// Close drains the async writer before the session ends.
	if err := b.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs, err := store.ListBySession(ctx, sessionID, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("journaled %d messages, want 2", len(msgs))
	}
	if string(msgs[0].Body) != "hi" || string(msgs[1].Body) != "ho" {
		t.Errorf("bodies = %q, %q", msgs[0].Body, msgs[1].Body)
	}
	if msgs[0].CorrelationID.Valid {
		t.Error("fire-and-forget publish journaled with a correlation id")
	}
	if !msgs[1].CorrelationID.Valid || !msgs[1].ReplyTo.Valid {
		t.Error("rpc publish journaled without correlation metadata")
	}
}
