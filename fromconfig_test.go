package burrow

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/epalmerini/burrow/config"
)

func TestFromConfig_Memory(t *testing.T) {
	b, err := FromConfig(config.Config{
		Transport: config.TransportMemory,
		Timeout:   5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	if err := b.Subscribe("greet", upperHandler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reply, err := b.Publish(context.Background(), "greet", "hi", ExpectReply())
	if err != nil || reply == nil || reply.Text() != "HI" {
		t.Fatalf("rpc over configured broker failed: (%v, %v)", reply, err)
	}
	if b.timeout != 5*time.Millisecond {
		t.Errorf("timeout = %v, want config value", b.timeout)
	}
}

func TestFromConfig_UnknownTransport(t *testing.T) {
	if _, err := FromConfig(config.Config{Transport: "carrier-pigeon"}); err == nil {
		t.Error("expected error for unknown transport")
	}
}

func TestFromConfig_OwnsJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	b, err := FromConfig(config.Config{
		Transport:   config.TransportMemory,
		Timeout:     config.DefaultTimeout,
		JournalPath: path,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := b.Publish(context.Background(), "greet", "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.SessionID() == 0 {
		t.Error("configured journal produced no session")
	}

	// Close must also close the store the broker opened itself.
	if err := b.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
