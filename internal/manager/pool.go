package manager

import (
	"slices"

	"github.com/zjrosen/algomgr/internal/algorithm"
)

// retentionPool keeps handles in creation order. It is not safe for
// concurrent use; Manager guards it.
type retentionPool struct {
	entries []Handle
	index   map[algorithm.HandleID]Handle
}

func newRetentionPool() *retentionPool {
	return &retentionPool{index: make(map[algorithm.HandleID]Handle)}
}

func (p *retentionPool) push(h Handle) {
	p.entries = append(p.entries, h)
	p.index[h.ID()] = h
}

func (p *retentionPool) get(id algorithm.HandleID) (Handle, bool) {
	h, ok := p.index[id]
	return h, ok
}

func (p *retentionPool) len() int { return len(p.entries) }

func (p *retentionPool) snapshot() []Handle { return slices.Clone(p.entries) }

func (p *retentionPool) clear() {
	p.entries = nil
	clear(p.index)
}

// evict removes the oldest entries that are not running until the pool fits
// capacity or only running entries remain. It returns the removed handles.
func (p *retentionPool) evict(capacity int) []Handle {
	var evicted []Handle
	for len(p.entries) > capacity {
		i := slices.IndexFunc(p.entries, func(h Handle) bool { return !h.IsRunning() })
		if i < 0 {
			break
		}
		h := p.entries[i]
		p.entries = slices.Delete(p.entries, i, i+1)
		delete(p.index, h.ID())
		evicted = append(evicted, h)
	}
	return evicted
}
