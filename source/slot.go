package source

import (
	"sync"
	"time"

	"github.com/nvr-ai/go-segscan/images"
)

// FrameSlot is a single-frame mailbox. Each Store overwrites the previous
// frame; readers always see the newest one. Frames never queue up behind a
// slow consumer.
type FrameSlot struct {
	mu       sync.Mutex
	frame    images.Raster
	seq      uint64
	taken    uint64
	dropped  uint64
	storedAt time.Time
}

// Store replaces the slot content with frame.
func (s *FrameSlot) Store(frame images.Raster) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seq > s.taken {
		s.dropped++
	}
	s.frame = frame
	s.seq++
	s.storedAt = time.Now()
}

// Latest returns the newest frame, or an empty raster if none was stored.
func (s *FrameSlot) Latest() images.Raster {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.taken = s.seq
	return s.frame
}

// SlotStats describes the traffic through a FrameSlot.
type SlotStats struct {
	Stored   uint64
	Dropped  uint64
	StoredAt time.Time
}

// Stats returns the slot counters. A frame counts as dropped when it was
// overwritten before any reader saw it.
func (s *FrameSlot) Stats() SlotStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SlotStats{Stored: s.seq, Dropped: s.dropped, StoredAt: s.storedAt}
}
