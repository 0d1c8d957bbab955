// Package extract isolates and sanitizes article bodies from raw newsletter
// HTML and pulls title/author/date/subtitle metadata from the full document.
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bindstack/bindstack/internal/binder"
)

var (
	// Generic container fallback, tried after the structural selectors.
	fallbackClassPattern = regexp.MustCompile(`post-content|entry-content`)
	// Structural noise stripped out of the extracted body.
	denyClassPattern = regexp.MustCompile(`subscribe|share|footer|comment|sidebar|button-wrapper|paywall`)
	subtitlePattern  = regexp.MustCompile(`subtitle`)
)

// Body locates the primary content container and sanitizes it in place. The
// first matching selector wins; when nothing matches, binder.ErrNoContent is
// returned so the caller can skip the item with a warning.
func Body(rawHTML string) (*goquery.Selection, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, binder.ErrNoContent
	}

	body := findContainer(doc)
	if body == nil {
		return nil, binder.ErrNoContent
	}

	pruneNoise(body)
	normalizeFootnotes(body)
	unwrapPictures(body)
	return body, nil
}

// findContainer walks the ordered fallback selector list, most specific
// structural match first.
func findContainer(doc *goquery.Document) *goquery.Selection {
	for _, sel := range []string{"div.body", "div.available-content", "article"} {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}
	candidates := doc.Find("div").FilterFunction(func(_ int, s *goquery.Selection) bool {
		cls, ok := s.Attr("class")
		return ok && fallbackClassPattern.MatchString(cls)
	})
	if candidates.Length() > 0 {
		return candidates.First()
	}
	return nil
}

// pruneNoise removes subscription prompts, share widgets, comments, sidebars,
// and paywall banners, plus all script/style/iframe nodes.
func pruneNoise(body *goquery.Selection) {
	body.Find("div,section").Each(func(_ int, s *goquery.Selection) {
		if cls, ok := s.Attr("class"); ok && denyClassPattern.MatchString(cls) {
			s.Remove()
		}
	})
	body.Find("script,style,iframe").Remove()
}

// normalizeFootnotes rewrites footnote cross-references onto stable local ids
// derived from the visible footnote number, so forward and backward links
// resolve to each other independent of source-assigned ids.
func normalizeFootnotes(body *goquery.Selection) {
	body.Find("a.footnote-anchor").Each(func(_ int, a *goquery.Selection) {
		num := strings.TrimSpace(a.Text())
		a.SetAttr("href", "#footnote-"+num)
		a.SetAttr("id", "footnote-anchor-"+num)
		stripTrackingAttrs(a)
	})
	body.Find("div.footnote").Each(func(_ int, div *goquery.Selection) {
		link := div.Find("a.footnote-number").First()
		if link.Length() == 0 {
			return
		}
		num := strings.TrimSpace(link.Text())
		link.SetAttr("href", "#footnote-anchor-"+num)
		link.SetAttr("id", "footnote-"+num)
		stripTrackingAttrs(link)
		link.RemoveAttr("contenteditable")
	})
}

func stripTrackingAttrs(s *goquery.Selection) {
	s.RemoveAttr("data-component-name")
	s.RemoveAttr("rel")
	s.RemoveAttr("target")
}

// unwrapPictures collapses responsive-image containers to the single
// canonical img element they wrap, dropping resolution-variant descriptors.
func unwrapPictures(body *goquery.Selection) {
	body.Find("picture").Each(func(_ int, pic *goquery.Selection) {
		img := pic.Find("img").First()
		if img.Length() > 0 {
			pic.ReplaceWithSelection(img)
		} else {
			pic.Remove()
		}
	})
	body.Find("source").Remove()
}

// Meta holds document-level metadata extracted from the full raw document.
// Absent fields stay empty; absence is never an error.
type Meta struct {
	Title    string
	Author   string
	Date     string
	Subtitle string
}

// DocumentMeta runs the independent metadata passes over the full document,
// not the extracted body.
func DocumentMeta(rawHTML string) Meta {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return Meta{}
	}

	var meta Meta
	doc.Find("h1").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if cls, ok := h.Attr("class"); ok && strings.Contains(cls, "post-title") {
			meta.Title = strings.TrimSpace(h.Text())
			return false
		}
		return true
	})
	if content, ok := doc.Find(`meta[name="author"]`).First().Attr("content"); ok {
		meta.Author = strings.TrimSpace(content)
	}
	if datetime, ok := doc.Find("time").First().Attr("datetime"); ok && len(datetime) >= 10 {
		meta.Date = datetime[:10]
	}
	doc.Find("h3").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if cls, ok := h.Attr("class"); ok && subtitlePattern.MatchString(cls) {
			meta.Subtitle = strings.TrimSpace(h.Text())
			return false
		}
		return true
	})
	return meta
}
