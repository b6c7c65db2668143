/*
minibase adopts LRU-K as the cache replacement policy (O'Neil et al., The LRU-K
page replacement algorithm for database disk buffering).

Plain LRU looks only at the single most recent access, so one sequential scan
can flush the whole pool. LRU-K instead keeps the last K access timestamps per
frame and evicts the frame whose K-th most recent access lies furthest in the
past (its `backward K-distance`). A frame with fewer than K recorded accesses
has infinite K-distance and is preferred as a victim; ties among those are
broken by the oldest earliest access, which degrades to FIFO for never-reused
frames.

The replacer tracks eviction candidates only. Whether a frame is evictable at
all is the manager's decision (a pinned frame must not be evicted), pushed in
through SetEvictable. The two sets described in the literature (frames with
fewer than K accesses, frames with K accesses) are kept here in one map and
separated during the victim scan. A linear scan over the pool is plenty at
this scale; the contract is the victim identity, not the data structure.

The replacer has its own mutex. The manager calls into the replacer while
holding the pool mutex and the replacer never calls back, so the lock order
pool -> replacer is acyclic.
*/
package buffer

import (
	"fmt"
	"sync"
	"time"
)

// accessHistory is the per-frame record in the replacer
type accessHistory struct {
	// timestamps of the last up to K accesses, oldest first.
	// with fewer than K entries nothing has been dropped, so history[0] is
	// also the earliest access ever recorded for this frame.
	history []uint64
	// evictable reports whether the manager allows evicting this frame
	evictable bool
}

// Replacer picks eviction victims with the LRU-K policy
type Replacer struct {
	mu sync.Mutex
	// numFrames is the capacity of the pool; frame ids must be below this
	numFrames int
	// k is the K of LRU-K
	k int
	// frames maps tracked frame ids to their access history.
	// an untracked frame is never an eviction candidate.
	frames map[FrameID]*accessHistory
	// evictableCount counts tracked frames with evictable == true
	evictableCount int

	// steady clock for timestamps
	start time.Time
	// lastTimestamp makes the microsecond clock strictly increasing even
	// when two accesses land in the same microsecond
	lastTimestamp uint64
}

// NewReplacer initializes the LRU-K replacer
func NewReplacer(numFrames, k int) *Replacer {
	if numFrames <= 0 {
		panic(fmt.Sprintf("replacer: invalid number of frames %d", numFrames))
	}
	if k < 1 {
		panic(fmt.Sprintf("replacer: invalid k %d", k))
	}
	return &Replacer{
		numFrames: numFrames,
		k:         k,
		frames:    make(map[FrameID]*accessHistory, numFrames),
		start:     time.Now(),
	}
}

// now returns the current timestamp in microseconds since the replacer was
// created. monotonically increasing.
// the caller must hold r.mu.
func (r *Replacer) now() uint64 {
	ts := uint64(time.Since(r.start).Microseconds())
	if ts <= r.lastTimestamp {
		ts = r.lastTimestamp + 1
	}
	r.lastTimestamp = ts
	return ts
}

// RecordAccess appends the current timestamp to the frame's history,
// creating the record on first access. history beyond the last K accesses is dropped.
func (r *Replacer) RecordAccess(fid FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeValidFrameID(fid)

	ah, ok := r.frames[fid]
	if !ok {
		ah = &accessHistory{}
		r.frames[fid] = ah
	}
	ah.history = append(ah.history, r.now())
	if len(ah.history) > r.k {
		ah.history = ah.history[1:]
	}
}

// SetEvictable toggles whether the frame may be evicted.
// the manager sets this to false while the frame is pinned and back to true
// when the pin count drops to zero.
func (r *Replacer) SetEvictable(fid FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeValidFrameID(fid)

	ah, ok := r.frames[fid]
	if !ok {
		panic(fmt.Sprintf("replacer: SetEvictable on untracked frame %d", fid))
	}
	if ah.evictable == evictable {
		return
	}
	ah.evictable = evictable
	if evictable {
		r.evictableCount++
	} else {
		r.evictableCount--
	}
}

// Evict picks the evictable frame with the greatest backward K-distance,
// drops its record and returns it. returns false when nothing is evictable.
//
// frames with fewer than K accesses have infinite K-distance and are
// preferred; among them the one with the oldest earliest access wins. among
// frames with a full history the one with the oldest K-th most recent access
// wins. in both cases the deciding timestamp is history[0], so one scan with
// a two-level comparison suffices.
func (r *Replacer) Evict() (FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	victim := InvalidFrameID
	victimUnderK := false
	var victimTS uint64
	for fid, ah := range r.frames {
		if !ah.evictable {
			continue
		}
		underK := len(ah.history) < r.k
		ts := ah.history[0]
		better := false
		switch {
		case victim == InvalidFrameID:
			better = true
		case underK != victimUnderK:
			// infinite distance beats finite distance
			better = underK
		default:
			better = ts < victimTS
		}
		if better {
			victim = fid
			victimUnderK = underK
			victimTS = ts
		}
	}
	if victim == InvalidFrameID {
		return InvalidFrameID, false
	}
	delete(r.frames, victim)
	r.evictableCount--
	return victim, true
}

// Remove drops the frame's record.
// only permitted when the frame is evictable; removing an untracked frame is a no-op.
func (r *Replacer) Remove(fid FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeValidFrameID(fid)

	ah, ok := r.frames[fid]
	if !ok {
		return
	}
	if !ah.evictable {
		panic(fmt.Sprintf("replacer: Remove on non-evictable frame %d", fid))
	}
	delete(r.frames, fid)
	r.evictableCount--
}

// Size returns the number of currently evictable frames
func (r *Replacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictableCount
}

// mustBeValidFrameID panics when the frame id cannot belong to the pool.
// contract violation by the caller, not a recoverable condition.
func (r *Replacer) mustBeValidFrameID(fid FrameID) {
	if fid < 0 || int(fid) >= r.numFrames {
		panic(fmt.Sprintf("replacer: frame id %d out of range [0, %d)", fid, r.numFrames))
	}
}
