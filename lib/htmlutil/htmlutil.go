package htmlutil

import (
	"context"
	"net/url"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"
)

var tracer = otel.Tracer("gktracker/lib/htmlutil")

// CleanText drops non-printable runes and collapses every run of whitespace
// (non-breaking spaces included) into a single space.
func CleanText(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

type Anchor struct {
	Name string
	Href string
}

// GetAnchors returns the cleaned text and href of every element in the
// selection, elements with an unparsable href are skipped.
func GetAnchors(ctx context.Context, sel *goquery.Selection) []Anchor {
	_, span := tracer.Start(ctx, "GetAnchors")
	defer span.End()

	anchors := []Anchor{}
	sel.Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		link, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "got error while parsing url")
			return
		}

		a := Anchor{Name: CleanText(s.Text()), Href: link.String()}
		anchors = append(anchors, a)
		span.AddEvent("anchor", trace.WithAttributes(
			attribute.String("name", a.Name),
			attribute.String("url", a.Href),
		))
	})
	return anchors
}

// CommentedDocuments parses every HTML comment in the document that contains
// `marker` and returns them as standalone documents. Some sites ship
// secondary tables commented out and reveal them with javascript.
func CommentedDocuments(doc *goquery.Document, marker string) []*goquery.Document {
	var out []*goquery.Document
	var walk func(node *html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.CommentNode && strings.Contains(node.Data, marker) {
			fragment, err := goquery.NewDocumentFromReader(strings.NewReader(node.Data))
			if err == nil {
				out = append(out, fragment)
			}
			return
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for _, root := range doc.Nodes {
		walk(root)
	}
	return out
}
