package gps

import (
	"sync"
	"time"
)

// Store holds the current fix and daemon health. The acquisition loop is the
// sole writer; IPC workers read whole-value snapshots. A reader can never
// observe a partially applied sentence.
type Store struct {
	mu sync.RWMutex

	started time.Time

	fix       Fix
	status    Status
	device    string
	sentences uint64
	lastFix   time.Time
}

func NewStore(nowUTC time.Time) *Store {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	return &Store{
		started: nowUTC.UTC(),
		fix:     Fix{Status: FixNone},
		status:  StatusStarting,
	}
}

// SetFix replaces the published fix snapshot.
func (s *Store) SetFix(f Fix) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.fix = f
	s.mu.Unlock()
}

func (s *Store) SetStatus(st Status) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *Store) SetDevice(device string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.device = device
	s.mu.Unlock()
}

// SentenceParsed records one checksum-valid sentence: the counter increments
// and the fix timestamp advances even when the sentence changes nothing else.
func (s *Store) SentenceParsed(nowUTC time.Time) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.sentences++
	s.fix.TimestampUTC = nowUTC.UTC().Format(time.RFC3339Nano)
	s.mu.Unlock()
}

// MarkFix records the time of the most recent valid-fix sentence.
func (s *Store) MarkFix(nowUTC time.Time) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.lastFix = nowUTC.UTC()
	s.mu.Unlock()
}

// Snapshot returns copies of the current fix and health. Uptime is computed
// at snapshot time, so back-to-back snapshots differ only in uptime when no
// sentences arrived in between.
func (s *Store) Snapshot(nowUTC time.Time) (Fix, Health) {
	if s == nil {
		return Fix{Status: FixNone}, Health{Status: StatusError}
	}
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	h := Health{
		Status:          s.status,
		UptimeSec:       nowUTC.UTC().Sub(s.started).Seconds(),
		SentencesParsed: s.sentences,
		Device:          s.device,
	}
	if !s.lastFix.IsZero() {
		h.LastFixUTC = s.lastFix.Format(time.RFC3339Nano)
	}
	return s.fix, h
}
