package manager

import (
	"sync"

	"github.com/JakeFAU/ehound/internal/source"
)

// visitSet records pages by normalized location.
type visitSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newVisitSet() *visitSet {
	return &visitSet{seen: make(map[string]struct{})}
}

func key(rawURL string) string {
	k, err := source.NormalizeURL(rawURL)
	if err != nil {
		return rawURL
	}
	return k
}

// add marks rawURL visited and reports whether it was new.
func (v *visitSet) add(rawURL string) bool {
	k := key(rawURL)
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[k]; ok {
		return false
	}
	v.seen[k] = struct{}{}
	return true
}

func (v *visitSet) has(rawURL string) bool {
	k := key(rawURL)
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.seen[k]
	return ok
}
