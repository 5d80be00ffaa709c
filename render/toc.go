package render

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mwcore/wikirender/rstate"
)

// buildOutline extracts the heading outline from the rendered HTML.
// Working from the final tree rather than the token stream means
// headings produced by templates and extension tags are included too.
func buildOutline(html string) []rstate.OutlineEntry {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var outline []rstate.OutlineEntry
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		node := s.Nodes[0]
		level := int(node.Data[1] - '0')
		id, _ := s.Attr("id")
		outline = append(outline, rstate.OutlineEntry{
			Level: level,
			Text:  strings.TrimSpace(s.Text()),
			ID:    id,
		})
	})
	return outline
}
