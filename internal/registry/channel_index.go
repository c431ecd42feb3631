package registry

import (
	"sync"
	"sync/atomic"

	"github.com/chainsignal/chainsignal/internal/alert"
)

// channelIndex is a reverse index from channel to subscribers, so a
// fan-out looks up only the channel's subscribers instead of scanning
// the whole registry.
//
// Reads take a lock-free atomic snapshot; writes copy-on-write the
// affected channel's slice under the index lock. Snapshots are
// immutable: safe to iterate mid-update, never to modify.
type channelIndex struct {
	mu      sync.RWMutex
	entries map[alert.Channel]*atomic.Value // channel -> []*subscriber snapshot
}

func newChannelIndex() *channelIndex {
	return &channelIndex{entries: make(map[alert.Channel]*atomic.Value)}
}

// add registers sub under every channel, skipping channels it is
// already indexed under.
func (idx *channelIndex) add(channels []alert.Channel, sub *subscriber) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, ch := range channels {
		slot := idx.entries[ch]
		if slot == nil {
			slot = &atomic.Value{}
			idx.entries[ch] = slot
		}

		var current []*subscriber
		if v := slot.Load(); v != nil {
			current = v.([]*subscriber)
		}

		already := false
		for _, existing := range current {
			if existing == sub {
				already = true
				break
			}
		}
		if already {
			continue
		}

		next := make([]*subscriber, len(current)+1)
		copy(next, current)
		next[len(current)] = sub
		slot.Store(next)
	}
}

// remove unregisters sub from every channel.
func (idx *channelIndex) remove(channels []alert.Channel, sub *subscriber) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, ch := range channels {
		slot := idx.entries[ch]
		if slot == nil {
			continue
		}
		v := slot.Load()
		if v == nil {
			continue
		}
		current := v.([]*subscriber)

		for i, existing := range current {
			if existing == sub {
				next := make([]*subscriber, len(current)-1)
				copy(next, current[:i])
				copy(next[i:], current[i+1:])
				if len(next) == 0 {
					delete(idx.entries, ch)
				} else {
					slot.Store(next)
				}
				break
			}
		}
	}
}

// get returns the immutable subscriber snapshot for the channel.
func (idx *channelIndex) get(ch alert.Channel) []*subscriber {
	idx.mu.RLock()
	slot := idx.entries[ch]
	idx.mu.RUnlock()

	if slot == nil {
		return nil
	}
	v := slot.Load()
	if v == nil {
		return nil
	}
	return v.([]*subscriber)
}
