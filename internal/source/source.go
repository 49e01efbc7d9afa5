// Package source models a single web page of a serialized work: its location, the
// fetched markup, and the positional heuristics that pull chapters, images, text and
// "next" links out of markup that varies from site to site.
package source

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/ehound/internal/crawlerr"
)

// Source is an immutable page snapshot. An unfetched Source only carries its location.
type Source struct {
	location string
	u        *url.URL
	body     string
	doc      *goquery.Document
	fetched  bool
}

// New validates rawURL and returns an unfetched Source for it.
func New(rawURL string) (*Source, error) {
	u, err := parseAbsolute(rawURL)
	if err != nil {
		return nil, err
	}
	return &Source{location: rawURL, u: u}, nil
}

// FromBody builds a fetched Source from markup already in hand.
func FromBody(rawURL string, body []byte) (*Source, error) {
	src, err := New(rawURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &crawlerr.ParseError{Input: rawURL, Err: fmt.Errorf("parse html: %w", err)}
	}
	src.body = string(body)
	src.doc = doc
	src.fetched = true
	return src, nil
}

func parseAbsolute(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &crawlerr.ParseError{Input: rawURL, Err: err}
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, &crawlerr.ParseError{Input: rawURL, Err: errors.New("not an absolute url")}
	}
	return u, nil
}

// Location returns the URL the Source was created for.
func (s *Source) Location() string { return s.location }

// Host returns the lowercase host name of the location.
func (s *Source) Host() string { return strings.ToLower(s.u.Hostname()) }

// Origin returns scheme://host[:port] of the location.
func (s *Source) Origin() string {
	return strings.ToLower(s.u.Scheme + "://" + s.u.Host)
}

// Body returns the raw markup, empty until fetched.
func (s *Source) Body() string { return s.body }

// Document returns the parsed markup, nil until fetched.
func (s *Source) Document() *goquery.Document { return s.doc }

// Fetched reports whether the Source has been successfully retrieved.
func (s *Source) Fetched() bool { return s.fetched }

// Place derives the (book, chapter, slug) triple from the location.
func (s *Source) Place() Place {
	return placeFromPath(s.u.EscapedPath())
}

// Key returns the normalized location used to detect revisits.
func (s *Source) Key() string {
	key, err := NormalizeURL(s.location)
	if err != nil {
		return s.location
	}
	return key
}

// Resolve turns ref into an absolute URL relative to the location.
func (s *Source) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	r, err := url.Parse(ref)
	if err != nil {
		return "", &crawlerr.ParseError{Input: ref, Err: err}
	}
	return s.u.ResolveReference(r).String(), nil
}

// Equal reports whether both Sources share location and body.
func (s *Source) Equal(o *Source) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.location == o.location && s.body == o.body
}

// Compare orders Sources by location.
func Compare(a, b *Source) int {
	return strings.Compare(a.location, b.location)
}

func (s *Source) requireDocument(heuristic string) (*goquery.Document, error) {
	if s.doc == nil {
		return nil, &crawlerr.ExtractionError{URL: s.location, Heuristic: heuristic, Err: errors.New("source not fetched")}
	}
	return s.doc, nil
}

// NormalizeURL standardizes a URL to avoid duplicates.
// It lowercases the scheme and host, removes default ports, sorts query parameters and
// drops the fragment.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawQuery = u.Query().Encode()

	return u.String(), nil
}
