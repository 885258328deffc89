package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestRecordPersistsAndRecentReturnsNewestFirst(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	sink, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sink.Close()

	sink.Record("kick", "admin", "user=alice")
	sink.Record("mute", "admin", "user=bob")

	deadline := time.Now().Add(time.Second)
	var events []Event
	for time.Now().Before(deadline) {
		events, err = sink.Recent(context.Background(), 10)
		if err != nil {
			t.Fatalf("recent: %v", err)
		}
		if len(events) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != "mute" || events[1].Kind != "kick" {
		t.Fatalf("expected newest-first order [mute, kick], got [%s, %s]", events[0].Kind, events[1].Kind)
	}
}

func TestRecordDropsWhenChannelFull(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	sink, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sink.Close()

	// Exceeding eventBuf should not block Record even if the writer
	// goroutine is momentarily behind.
	for i := 0; i < eventBuf*2; i++ {
		sink.Record("spam", "actor", "detail")
	}
}
