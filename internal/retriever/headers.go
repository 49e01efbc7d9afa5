package retriever

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/ehound/internal/downloader"
	"github.com/JakeFAU/ehound/internal/fetcher"
)

// HeaderTable maps an exact domain to the headers sent to it.
type HeaderTable struct {
	mu      sync.RWMutex
	domains map[string]http.Header
}

// NewHeaderTable returns the default table, which registers readmanganato.com with its
// own Referer.
func NewHeaderTable() *HeaderTable {
	return &HeaderTable{domains: map[string]http.Header{
		"readmanganato.com": {"Referer": {"https://readmanganato.com/"}},
	}}
}

// Set replaces the value of name for domain.
func (t *HeaderTable) Set(domain, name, value string) {
	domain = strings.ToLower(domain)
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.domains[domain]
	if !ok {
		h = http.Header{}
		t.domains[domain] = h
	}
	h.Set(name, value)
}

// Delete removes name from domain, dropping the domain once it has no headers.
func (t *HeaderTable) Delete(domain, name string) {
	domain = strings.ToLower(domain)
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.domains[domain]
	if !ok {
		return
	}
	h.Del(name)
	if len(h) == 0 {
		delete(t.domains, domain)
	}
}

// HeadersFor returns a copy of the headers registered for host, or nil.
func (t *HeaderTable) HeadersFor(host string) http.Header {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.domains[strings.ToLower(host)]
	if !ok {
		return nil
	}
	return h.Clone()
}

// Domains lists the registered domains in ascending order.
func (t *HeaderTable) Domains() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.domains))
	for d := range t.domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func (t *HeaderTable) flatten() map[string]map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]map[string]string, len(t.domains))
	for d, h := range t.domains {
		flat := make(map[string]string, len(h))
		for k := range h {
			flat[k] = h.Get(k)
		}
		out[d] = flat
	}
	return out
}

func (t *HeaderTable) replace(flat map[string]map[string]string) {
	domains := make(map[string]http.Header, len(flat))
	for d, vals := range flat {
		h := http.Header{}
		for k, v := range vals {
			h.Set(k, v)
		}
		domains[strings.ToLower(d)] = h
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.domains = domains
}

// Resolver picks the headers for a host: the retriever's domain table first, then the
// downloader's site groups, then the default Referer.
type Resolver struct {
	Table      *HeaderTable
	Downloader *downloader.State
}

var _ fetcher.HeaderSource = (*Resolver)(nil)

// HeadersFor implements fetcher.HeaderSource.
func (r *Resolver) HeadersFor(host string) http.Header {
	if r.Table != nil {
		if h := r.Table.HeadersFor(host); h != nil {
			return h
		}
	}
	if r.Downloader != nil {
		if h := r.Downloader.HeadersFor(host); h != nil {
			return h
		}
	}
	return http.Header{"Referer": {downloader.DefaultReferer}}
}
