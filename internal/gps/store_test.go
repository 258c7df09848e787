package gps

import (
	"testing"
	"time"
)

func TestStoreSnapshotUptime(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(start)

	_, h := s.Snapshot(start.Add(3 * time.Second))
	if h.UptimeSec != 3 {
		t.Fatalf("uptime = %v, want 3", h.UptimeSec)
	}
	if h.Status != StatusStarting {
		t.Fatalf("status = %q, want starting", h.Status)
	}

	f, _ := s.Snapshot(start)
	if f.Status != FixNone {
		t.Fatalf("initial fix status = %q, want no_fix", f.Status)
	}
}

func TestStoreSentenceParsed(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(now)

	s.SentenceParsed(now.Add(time.Second))
	s.SentenceParsed(now.Add(2 * time.Second))

	f, h := s.Snapshot(now.Add(2 * time.Second))
	if h.SentencesParsed != 2 {
		t.Fatalf("sentences = %d, want 2", h.SentencesParsed)
	}
	if f.TimestampUTC == "" {
		t.Fatalf("expected fix timestamp after parsed sentence")
	}
}

func TestStoreSnapshotIsCopy(t *testing.T) {
	now := time.Now().UTC()
	s := NewStore(now)

	alt := 120.5
	s.SetFix(Fix{Status: FixValid, Latitude: 1, Longitude: 2, AltitudeM: &alt})
	f1, _ := s.Snapshot(now)

	s.SetFix(Fix{Status: FixNone})
	if f1.Status != FixValid || f1.Latitude != 1 {
		t.Fatalf("snapshot mutated by later write: %+v", f1)
	}
}

func TestStoreMarkFix(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(now)

	_, h := s.Snapshot(now)
	if h.LastFixUTC != "" {
		t.Fatalf("expected empty last fix time, got %q", h.LastFixUTC)
	}

	s.MarkFix(now.Add(5 * time.Second))
	_, h = s.Snapshot(now.Add(6 * time.Second))
	if h.LastFixUTC == "" {
		t.Fatalf("expected last fix time to be set")
	}
}
