package source

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/ehound/internal/crawlerr"
)

const (
	heuristicText     = "text"
	heuristicImages   = "images"
	heuristicChapters = "chapter links"
	heuristicTitle    = "title"
)

// ExtractText returns the text of the largest paragraph container: among the divs with
// a direct <p> child, the one with the most direct child elements. Fragments are the
// trimmed non-empty text nodes inside its children, in document order.
func (s *Source) ExtractText() ([]string, error) {
	doc, err := s.requireDocument(heuristicText)
	if err != nil {
		return nil, err
	}
	best := largestDiv(doc, func(div *goquery.Selection) int {
		if div.ChildrenFiltered("p").Length() == 0 {
			return 0
		}
		return div.Children().Length()
	})
	if best == nil {
		return nil, crawlerr.NoMatch(s.location, heuristicText)
	}

	var fragments []string
	best.Children().Each(func(_ int, child *goquery.Selection) {
		for _, n := range child.Nodes {
			collectText(n, &fragments)
		}
	})
	return fragments, nil
}

// ExtractImages returns the absolute src of every direct <img> child of the div holding
// the most of them.
func (s *Source) ExtractImages() ([]string, error) {
	doc, err := s.requireDocument(heuristicImages)
	if err != nil {
		return nil, err
	}
	best := largestDiv(doc, func(div *goquery.Selection) int {
		return div.ChildrenFiltered("img").Length()
	})
	if best == nil {
		return nil, crawlerr.NoMatch(s.location, heuristicImages)
	}
	return s.resolveAttr(best.ChildrenFiltered("img"), "src"), nil
}

// ExtractChapterLinks harvests the biggest cluster of links: among the divs with a <p>,
// <table> or <ul> descendant, the one with the most <a> descendants. Hrefs are resolved
// and returned in document order without deduplication.
func (s *Source) ExtractChapterLinks() ([]string, error) {
	doc, err := s.requireDocument(heuristicChapters)
	if err != nil {
		return nil, err
	}
	best := largestDiv(doc, func(div *goquery.Selection) int {
		if div.Find("p, table, ul").Length() == 0 {
			return 0
		}
		return div.Find("a").Length()
	})
	if best == nil {
		return nil, crawlerr.NoMatch(s.location, heuristicChapters)
	}
	return s.resolveAttr(best.Find("a"), "href"), nil
}

// NextLink returns the resolved href of the first anchor, in document order, whose own
// text contains predicate.
func (s *Source) NextLink(predicate string) (string, bool) {
	if s.doc == nil || predicate == "" {
		return "", false
	}
	var found string
	s.doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if !ownTextContains(a.Nodes[0], predicate) {
			return true
		}
		href, _ := a.Attr("href")
		resolved, err := s.Resolve(href)
		if err != nil {
			return true
		}
		found = resolved
		return false
	})
	return found, found != ""
}

// Title returns the page <title> up to the first " Chapter" marker.
func (s *Source) Title() (string, error) {
	doc, err := s.requireDocument(heuristicTitle)
	if err != nil {
		return "", err
	}
	raw := doc.Find("title").First().Text()
	for _, part := range strings.Split(raw, " Chapter") {
		if title := strings.TrimSpace(part); title != "" {
			return title, nil
		}
	}
	return "", crawlerr.NoMatch(s.location, heuristicTitle)
}

// largestDiv returns the first div with the highest positive score.
func largestDiv(doc *goquery.Document, score func(*goquery.Selection) int) *goquery.Selection {
	var (
		best      *goquery.Selection
		bestScore int
	)
	doc.Find("div").Each(func(_ int, div *goquery.Selection) {
		if n := score(div); n > bestScore {
			best, bestScore = div, n
		}
	})
	return best
}

func (s *Source) resolveAttr(sel *goquery.Selection, attr string) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, el *goquery.Selection) {
		val, ok := el.Attr(attr)
		if !ok {
			return
		}
		resolved, err := s.Resolve(val)
		if err != nil {
			return
		}
		out = append(out, resolved)
	})
	return out
}

func collectText(n *html.Node, out *[]string) {
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			*out = append(*out, t)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, out)
	}
}

func ownTextContains(n *html.Node, predicate string) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode && strings.Contains(c.Data, predicate) {
			return true
		}
	}
	return false
}
