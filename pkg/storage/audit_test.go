package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "audit.db"))
	if err := s.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndRecentEvents(t *testing.T) {
	s := newTestStore(t)

	base := time.Now().Add(-time.Minute)
	events := []Event{
		{GuildID: "g1", Actor: "u1", Action: ActionChannelCreated, Subject: "ch-1", CreatedAt: base},
		{GuildID: "g1", Actor: "u1", Action: ActionRoleGranted, Subject: "r1", CreatedAt: base.Add(time.Second)},
		{GuildID: "g2", Actor: "u2", Action: ActionBroadcastSent, Subject: "ch-9", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range events {
		if err := s.Record(e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := s.RecentEvents("g1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events for g1, got %d", len(got))
	}
	if got[0].Action != ActionRoleGranted || got[1].Action != ActionChannelCreated {
		t.Fatalf("expected newest first, got %s then %s", got[0].Action, got[1].Action)
	}
}

func TestRecentEventsHonorsLimit(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		if err := s.Record(Event{GuildID: "g1", Actor: "u1", Action: ActionRoleGranted, Subject: "r1"}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := s.RecentEvents("g1", 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
}

func TestRecordStampsZeroTime(t *testing.T) {
	s := newTestStore(t)

	if err := s.Record(Event{GuildID: "g1", Actor: "u1", Action: ActionBindingUpserted, Subject: "Gamer"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, err := s.RecentEvents("g1", 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 || got[0].CreatedAt.IsZero() {
		t.Fatalf("expected stamped timestamp, got %+v", got)
	}
}

func TestPruneOlderThanRemovesOnlyStaleEvents(t *testing.T) {
	s := newTestStore(t)

	old := time.Now().Add(-48 * time.Hour)
	if err := s.Record(Event{GuildID: "g1", Actor: "u1", Action: ActionChannelCreated, Subject: "ch-old", CreatedAt: old}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.Record(Event{GuildID: "g1", Actor: "u1", Action: ActionChannelCreated, Subject: "ch-new"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	n, err := s.PruneOlderThan(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned event, got %d", n)
	}

	got, err := s.RecentEvents("g1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 || got[0].Subject != "ch-new" {
		t.Fatalf("expected only the fresh event, got %+v", got)
	}
}

func TestRecordBestEffortOnNilStore(t *testing.T) {
	var s *Store
	s.RecordBestEffort(Event{GuildID: "g1", Action: ActionChannelDeleted})
}
