package source

import (
	"strconv"
	"strings"
)

const maxPlaceNumber = 9000

// Place is the (book, chapter, slug) triple guessed from a URL path. It is a structural
// heuristic, not a guarantee.
type Place struct {
	Book    uint16
	Chapter uint16
	Slug    string
}

// DerivePlace parses rawURL and guesses its Place.
//
// Path segments are read in reverse with empty ones dropped. The slug is the first
// segment of the path when it has fewer than three segments, otherwise the second. The
// segments after the slug (in reverse order) carry the numbers: the digits of each are
// concatenated and parsed, a segment without digits counting as 0. A path made of a
// single segment reads its number from that segment.
//
// Two numbers yield (x, y, slug), one yields (0, x, slug), none yields (0, 0, slug). A
// number above 9000 makes the path unrecognized and yields (0, 0, "").
func DerivePlace(rawURL string) (Place, error) {
	u, err := parseAbsolute(rawURL)
	if err != nil {
		return Place{}, err
	}
	return placeFromPath(u.EscapedPath()), nil
}

func placeFromPath(path string) Place {
	segs := reversedSegments(path)
	if len(segs) == 0 {
		return Place{}
	}
	slugIdx := len(segs) - 1
	if len(segs) >= 3 {
		slugIdx = len(segs) - 2
	}
	slug := segs[slugIdx]

	candidates := segs[:slugIdx]
	if slugIdx == 0 {
		candidates = segs[:1]
	}
	numbers := make([]uint64, 0, len(candidates))
	for _, seg := range candidates {
		numbers = append(numbers, segmentNumber(seg))
	}

	switch {
	case len(numbers) >= 2 && numbers[0] <= maxPlaceNumber && numbers[1] <= maxPlaceNumber:
		return Place{Book: uint16(numbers[0]), Chapter: uint16(numbers[1]), Slug: slug}
	case len(numbers) == 1 && numbers[0] <= maxPlaceNumber:
		return Place{Chapter: uint16(numbers[0]), Slug: slug}
	case len(numbers) == 0:
		return Place{Slug: slug}
	default:
		return Place{}
	}
}

// segmentNumber concatenates the ASCII digits of seg. Anything that does not fit in 16
// bits counts as 0.
func segmentNumber(seg string) uint64 {
	var b strings.Builder
	for _, r := range seg {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	n, err := strconv.ParseUint(b.String(), 10, 16)
	if err != nil {
		return 0
	}
	return n
}

func reversedSegments(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			out = append(out, parts[i])
		}
	}
	return out
}

// ResolveIndex guesses the table-of-contents page for the Source. Walking the path in
// reverse, segments mentioning "chapter" are dropped. Other segments are kept once a
// chapter segment has been seen or once past the first two scanned. The kept segments,
// in their original order, are appended to the origin. The result is not fetched.
func (s *Source) ResolveIndex() (*Source, error) {
	segs := reversedSegments(s.u.EscapedPath())
	kept := make([]string, 0, len(segs))
	chapters := 0
	for pos, seg := range segs {
		if strings.Contains(strings.ToLower(seg), "chapter") {
			chapters++
			continue
		}
		if chapters != 0 || pos > 1 {
			kept = append(kept, seg)
		}
	}

	parts := make([]string, 0, len(kept)+1)
	parts = append(parts, s.u.Scheme+"://"+s.u.Host)
	for i := len(kept) - 1; i >= 0; i-- {
		parts = append(parts, kept[i])
	}
	return New(strings.Join(parts, "/"))
}
