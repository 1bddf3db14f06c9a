package telem

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zigsight/zigsight/pkg"
)

// Store keeps bounded per-device metric histories in RAM. Each device owns a
// FIFO ring of at most maxEntries snapshots, further pruned by retention age
// lazily on read and eagerly on Cleanup. Appends to different devices never
// contend; append and read on the same device serialize on the ring's lock.
type Store struct {
	mu sync.RWMutex

	maxEntries int
	retention  time.Duration

	devices map[string]*deviceHistory
	events  *eventRing
}

// deviceHistory is one device's snapshot ring plus its identity record.
type deviceHistory struct {
	mu    sync.Mutex
	info  pkg.DeviceInfo
	snaps []pkg.MetricSnapshot
	head  int
	size  int
}

// eventRing is a fixed-capacity FIFO of system events.
type eventRing struct {
	mu     sync.Mutex
	events []pkg.Event
	head   int
	size   int
}

const eventCapacity = 1000

// NewStore creates a history store. maxEntries bounds each device's ring;
// retention bounds entry age.
func NewStore(maxEntries int, retention time.Duration) (*Store, error) {
	if maxEntries < 1 {
		return nil, fmt.Errorf("max entries per device must be >= 1, got %d", maxEntries)
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}

	return &Store{
		maxEntries: maxEntries,
		retention:  retention,
		devices:    make(map[string]*deviceHistory),
		events:     &eventRing{events: make([]pkg.Event, eventCapacity)},
	}, nil
}

// Append inserts a snapshot for a device, evicting the oldest entry once the
// ring is full. Entries are never mutated after insertion.
func (s *Store) Append(deviceID string, snap pkg.MetricSnapshot) {
	dh := s.history(deviceID, true)

	dh.mu.Lock()
	defer dh.mu.Unlock()

	if dh.snaps == nil {
		dh.snaps = make([]pkg.MetricSnapshot, s.maxEntries)
	}

	tail := (dh.head + dh.size) % s.maxEntries
	dh.snaps[tail] = snap
	if dh.size < s.maxEntries {
		dh.size++
	} else {
		dh.head = (dh.head + 1) % s.maxEntries
	}
}

// Window returns the device's snapshots with timestamp >= since, in
// chronological order. The store is expected to hold entries already sorted;
// the sort here is defensive against out-of-order appends. Entries past the
// retention age are dropped.
func (s *Store) Window(deviceID string, since time.Time) []pkg.MetricSnapshot {
	dh := s.history(deviceID, false)
	if dh == nil {
		return nil
	}

	cutoff := time.Now().Add(-s.retention)
	if cutoff.After(since) {
		since = cutoff
	}

	dh.mu.Lock()
	out := make([]pkg.MetricSnapshot, 0, dh.size)
	for i := 0; i < dh.size; i++ {
		snap := dh.snaps[(dh.head+i)%s.maxEntries]
		if !snap.Timestamp.Before(since) {
			out = append(out, snap)
		}
	}
	dh.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// History returns every retained snapshot for a device in chronological
// order, subject to the retention age.
func (s *Store) History(deviceID string) []pkg.MetricSnapshot {
	return s.Window(deviceID, time.Time{})
}

// Latest returns the most recent snapshot for a device, if any.
func (s *Store) Latest(deviceID string) (pkg.MetricSnapshot, bool) {
	dh := s.history(deviceID, false)
	if dh == nil {
		return pkg.MetricSnapshot{}, false
	}

	dh.mu.Lock()
	defer dh.mu.Unlock()

	if dh.size == 0 {
		return pkg.MetricSnapshot{}, false
	}
	return dh.snaps[(dh.head+dh.size-1)%s.maxEntries], true
}

// Count returns the number of retained entries for a device, ignoring the
// retention age.
func (s *Store) Count(deviceID string) int {
	dh := s.history(deviceID, false)
	if dh == nil {
		return 0
	}
	dh.mu.Lock()
	defer dh.mu.Unlock()
	return dh.size
}

// SetDeviceInfo records or updates a device's identity.
func (s *Store) SetDeviceInfo(info pkg.DeviceInfo) {
	dh := s.history(info.DeviceID, true)

	dh.mu.Lock()
	defer dh.mu.Unlock()

	if dh.info.FirstSeen.IsZero() {
		dh.info.FirstSeen = info.FirstSeen
	}
	dh.info.DeviceID = info.DeviceID
	if info.FriendlyName != "" {
		dh.info.FriendlyName = info.FriendlyName
	}
	if info.Type != "" {
		dh.info.Type = info.Type
	}
	if info.ParentID != "" {
		dh.info.ParentID = info.ParentID
	}
}

// DeviceInfo returns a device's identity record.
func (s *Store) DeviceInfo(deviceID string) (pkg.DeviceInfo, bool) {
	dh := s.history(deviceID, false)
	if dh == nil {
		return pkg.DeviceInfo{}, false
	}
	dh.mu.Lock()
	defer dh.mu.Unlock()
	return dh.info, dh.info.DeviceID != ""
}

// Devices returns all known device identifiers, sorted for stable output.
func (s *Store) Devices() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.devices))
	for id := range s.devices {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Cleanup drops entries older than the retention age and forgets devices
// whose history emptied out. Intended for a periodic sweep.
func (s *Store) Cleanup() {
	cutoff := time.Now().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, dh := range s.devices {
		dh.mu.Lock()
		for dh.size > 0 && dh.snaps[dh.head].Timestamp.Before(cutoff) {
			dh.head = (dh.head + 1) % s.maxEntries
			dh.size--
		}
		empty := dh.size == 0 && dh.info.DeviceID == ""
		dh.mu.Unlock()

		if empty {
			delete(s.devices, id)
		}
	}

	s.events.removeBefore(cutoff)
}

// AddEvent records a system event.
func (s *Store) AddEvent(event pkg.Event) {
	s.events.add(event)
}

// Events returns events with timestamp >= since, oldest first, capped at
// limit when limit > 0.
func (s *Store) Events(since time.Time, limit int) []pkg.Event {
	return s.events.since(since, limit)
}

func (s *Store) history(deviceID string, create bool) *deviceHistory {
	s.mu.RLock()
	dh := s.devices[deviceID]
	s.mu.RUnlock()

	if dh != nil || !create {
		return dh
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if dh = s.devices[deviceID]; dh == nil {
		dh = &deviceHistory{}
		s.devices[deviceID] = dh
	}
	return dh
}

func (r *eventRing) add(event pkg.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tail := (r.head + r.size) % eventCapacity
	r.events[tail] = event
	if r.size < eventCapacity {
		r.size++
	} else {
		r.head = (r.head + 1) % eventCapacity
	}
}

func (r *eventRing) since(since time.Time, limit int) []pkg.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]pkg.Event, 0, r.size)
	for i := 0; i < r.size; i++ {
		ev := r.events[(r.head+i)%eventCapacity]
		if !ev.Timestamp.Before(since) {
			out = append(out, ev)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (r *eventRing) removeBefore(cutoff time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.size > 0 && r.events[r.head].Timestamp.Before(cutoff) {
		r.head = (r.head + 1) % eventCapacity
		r.size--
	}
}
