// Package downloader keeps the header groups attached to sites. A group is a numbered
// set of request headers; a site name lists the groups that apply to every host whose
// name contains it.
package downloader

import (
	"net/http"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/ehound/internal/statefile"
)

// DefaultReferer is the Referer registered in group 0.
const DefaultReferer = "https://manganato.com/"

// State holds header groups and the sites that use them.
type State struct {
	mu      sync.RWMutex
	headers map[uint32]http.Header
	sites   map[string][]uint32
}

type stateFile struct {
	Headers map[uint32]map[string]string `json:"headers"`
	Sites   map[string][]uint32          `json:"sites"`
}

// New returns the default state: group 0 carries the default Referer and is used by
// "manganelo".
func New() *State {
	return &State{
		headers: map[uint32]http.Header{0: {"Referer": {DefaultReferer}}},
		sites:   map[string][]uint32{"manganelo": {0}},
	}
}

// AddGroupToSite attaches group to site once.
func (s *State) AddGroupToSite(site string, group uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := s.sites[site]
	if !slices.Contains(groups, group) {
		s.sites[site] = append(groups, group)
	}
}

// RemoveGroupFromSite detaches group from site. The site entry is kept even when empty.
func (s *State) RemoveGroupFromSite(site string, group uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := s.sites[site]
	s.sites[site] = slices.DeleteFunc(slices.Clone(groups), func(g uint32) bool { return g == group })
}

// AddHeader sets name to value in group, creating the group when needed.
func (s *State) AddHeader(group uint32, name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.headers[group]
	if !ok {
		h = http.Header{}
		s.headers[group] = h
	}
	h.Set(name, value)
}

// RemoveHeader deletes name from group.
func (s *State) RemoveHeader(group uint32, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.headers[group]; ok {
		h.Del(name)
	}
}

// RemoveGroup deletes group. Sites still listing it simply stop receiving its headers.
func (s *State) RemoveGroup(group uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.headers, group)
}

// HeadersFor merges the groups of every site whose name appears in host. Sites are
// visited in name order and the first value set for a header wins. It returns nil when
// no site matches.
func (s *State) HeadersFor(host string) http.Header {
	host = strings.ToLower(host)
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.sites))
	for site := range s.sites {
		if site != "" && strings.Contains(host, strings.ToLower(site)) {
			names = append(names, site)
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)

	var out http.Header
	for _, site := range names {
		for _, g := range s.sites[site] {
			for k, v := range s.headers[g] {
				if out == nil {
					out = http.Header{}
				}
				if _, exists := out[k]; !exists {
					out[k] = append([]string(nil), v...)
				}
			}
		}
	}
	return out
}

// Groups returns a copy of every group as name → value.
func (s *State) Groups() map[uint32]map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groupsLocked()
}

// Sites returns a copy of the site table.
func (s *State) Sites() map[string][]uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]uint32, len(s.sites))
	for k, v := range s.sites {
		out[k] = slices.Clone(v)
	}
	return out
}

func (s *State) groupsLocked() map[uint32]map[string]string {
	out := make(map[uint32]map[string]string, len(s.headers))
	for g, h := range s.headers {
		flat := make(map[string]string, len(h))
		for k := range h {
			flat[k] = h.Get(k)
		}
		out[g] = flat
	}
	return out
}

// Save writes the state to path.
func (s *State) Save(path string) error {
	s.mu.RLock()
	file := stateFile{Headers: s.groupsLocked(), Sites: make(map[string][]uint32, len(s.sites))}
	for k, v := range s.sites {
		file.Sites[k] = slices.Clone(v)
	}
	s.mu.RUnlock()
	return statefile.Save(path, file)
}

// Decode reads a state file without touching s.
func Decode(path string) (*State, error) {
	var file stateFile
	if err := statefile.Load(path, &file); err != nil {
		return nil, err
	}
	st := &State{
		headers: make(map[uint32]http.Header, len(file.Headers)),
		sites:   make(map[string][]uint32, len(file.Sites)),
	}
	for g, flat := range file.Headers {
		h := http.Header{}
		for k, v := range flat {
			h.Set(k, v)
		}
		st.headers[g] = h
	}
	for site, groups := range file.Sites {
		st.sites[site] = slices.Clone(groups)
	}
	return st, nil
}

// Load replaces the state with the contents of path. On error s is unchanged.
func (s *State) Load(path string) error {
	next, err := Decode(path)
	if err != nil {
		return err
	}
	s.Replace(next)
	return nil
}

// Replace swaps in the tables of other.
func (s *State) Replace(other *State) {
	other.mu.RLock()
	headers := make(map[uint32]http.Header, len(other.headers))
	for g, h := range other.headers {
		headers[g] = h.Clone()
	}
	sites := make(map[string][]uint32, len(other.sites))
	for k, v := range other.sites {
		sites[k] = slices.Clone(v)
	}
	other.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers = headers
	s.sites = sites
}
