// Package extractor turns raw knowledge-base markup into cleaned article
// text, filtering out pages that are not real articles.
package extractor

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/parcelly/kbrag/internal/core/domain"
	"github.com/parcelly/kbrag/internal/core/ports/driven"
)

// Ensure Extractor implements the port.
var _ driven.ArticleExtractor = (*Extractor)(nil)

// DefaultMinBodyChars is the body length below which a page is treated
// as an empty template rather than an article. An empirical tunable,
// not a correctness constraint.
const DefaultMinBodyChars = 120

// FallbackTitle is used when a page carries neither a heading nor a
// document title.
const FallbackTitle = "Article"

// bodyCandidates are tried in order; the first match wins. The leading
// selectors cover the helpdesk platform's known article templates, the
// trailing ones are generic containers.
var bodyCandidates = []string{
	".solution-article-content",
	".article-description",
	".solution-article",
	".article-content",
	".kb-article",
	"article",
	"main",
}

var (
	anyWhitespace  = regexp.MustCompile(`\s+`)
	trailingBlanks = regexp.MustCompile(`[ \t]+\n`)
	manyNewlines   = regexp.MustCompile(`\n{3,}`)
)

// Extractor parses article pages.
type Extractor struct {
	minBodyChars int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMinBodyChars sets the minimum cleaned body length.
func WithMinBodyChars(n int) Option {
	return func(e *Extractor) {
		if n >= 0 {
			e.minBodyChars = n
		}
	}
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{minBodyChars: DefaultMinBodyChars}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Parse extracts the title and main content of a page. ok is false when
// the markup cannot be parsed or the remaining text is too short to be a
// real article; that is a content-quality rejection, not an error.
func (e *Extractor) Parse(html string) (*domain.ParsedArticle, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false
	}

	title := firstText(doc, "h1")
	if title == "" {
		title = firstText(doc, "title")
	}
	if title == "" {
		title = FallbackTitle
	}
	title = anyWhitespace.ReplaceAllString(title, " ")

	doc.Find("script,style,noscript,svg").Remove()

	container := doc.Selection
	for _, sel := range bodyCandidates {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			container = s
			break
		}
	}
	container.Find("nav,aside,footer,form,button").Remove()

	body := cleanBody(container.Text())
	if len([]rune(body)) < e.minBodyChars {
		return nil, false
	}

	return &domain.ParsedArticle{Title: title, BodyText: body}, true
}

func firstText(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

func cleanBody(text string) string {
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = trailingBlanks.ReplaceAllString(text, "\n")
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
