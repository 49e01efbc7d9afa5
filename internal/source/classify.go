package source

import "strings"

// MinTextFragments is the fragment count under which an ambiguous page is treated as
// image content.
const MinTextFragments = 20

// Classifier decides whether a page is image-based or text-based from its origin.
type Classifier struct {
	TextKeywords     []string
	ImageKeywords    []string
	MinTextFragments int
}

// DefaultClassifier returns the keyword lists for the known aggregator families.
func DefaultClassifier() Classifier {
	return Classifier{
		TextKeywords:     []string{"novel", "royalroad", "comrademao"},
		ImageKeywords:    []string{"manga", "hentai", "pururin", "luscious"},
		MinTextFragments: MinTextFragments,
	}
}

// ClassifyVisual reports whether the page holds image content. A page whose origin
// matches exactly one keyword list takes that list's verdict. Otherwise it is visual
// when fewer than MinTextFragments text fragments can be extracted.
func (s *Source) ClassifyVisual(c Classifier) bool {
	origin := s.Origin()
	text := matchesAny(origin, c.TextKeywords)
	image := matchesAny(origin, c.ImageKeywords)
	switch {
	case text && !image:
		return false
	case image && !text:
		return true
	}

	limit := c.MinTextFragments
	if limit <= 0 {
		limit = MinTextFragments
	}
	fragments, err := s.ExtractText()
	if err != nil {
		return true
	}
	return len(fragments) < limit
}

func matchesAny(origin string, keywords []string) bool {
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(origin, kw) {
			return true
		}
	}
	return false
}
