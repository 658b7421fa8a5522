package service

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	filterMinCapacity = 10_000
	filterFalseRate   = 0.001
)

// urlFilter is a Bloom filter over the custom URLs this process has seen:
// the last rebuild, local creates and synced announcements. A negative answer
// says nothing about rows written since by other writers; a positive one must
// be confirmed against the store. Deleted URLs stay in the filter until the
// next rebuild.
type urlFilter struct {
	mu         sync.RWMutex
	filter     *bloom.BloomFilter
	ready      bool
	rebuilding bool
	// added collects URLs created while a rebuild is reading the store.
	added []string
}

func newURLFilter() *urlFilter {
	return &urlFilter{filter: bloom.NewWithEstimates(filterMinCapacity, filterFalseRate)}
}

// MayContain reports false only when customURL was never added. Before the
// first rebuild it always reports true.
func (f *urlFilter) MayContain(customURL string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.ready {
		return true
	}
	return f.filter.TestString(customURL)
}

func (f *urlFilter) Add(customURL string) {
	f.mu.Lock()
	f.filter.AddString(customURL)
	if f.rebuilding {
		f.added = append(f.added, customURL)
	}
	f.mu.Unlock()
}

// BeginRebuild must be called before reading the URL list from the store.
func (f *urlFilter) BeginRebuild() {
	f.mu.Lock()
	f.rebuilding = true
	f.added = nil
	f.mu.Unlock()
}

// AbortRebuild is called when the store read fails.
func (f *urlFilter) AbortRebuild() {
	f.mu.Lock()
	f.rebuilding = false
	f.added = nil
	f.mu.Unlock()
}

// Rebuild swaps in a fresh filter sized for urls plus anything added since
// BeginRebuild.
func (f *urlFilter) Rebuild(urls []string) {
	capacity := uint(len(urls) * 2)
	if capacity < filterMinCapacity {
		capacity = filterMinCapacity
	}
	next := bloom.NewWithEstimates(capacity, filterFalseRate)
	for _, u := range urls {
		next.AddString(u)
	}

	f.mu.Lock()
	for _, u := range f.added {
		next.AddString(u)
	}
	f.filter = next
	f.ready = true
	f.rebuilding = false
	f.added = nil
	f.mu.Unlock()
}
