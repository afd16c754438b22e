package browser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/ned-harvester/internal/harvest"
)

// parseTable extracts rows from html. Links and image sources are resolved
// against location.
func parseTable(html, location, rowSelector string) ([]harvest.TableRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	base, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse location %q: %w", location, err)
	}

	var rows []harvest.TableRow
	doc.Find(rowSelector).Each(func(_ int, row *goquery.Selection) {
		var cells harvest.TableRow
		row.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, harvest.TableCell{
				Text:  strings.Join(strings.Fields(cell.Text()), " "),
				Link:  resolve(base, cell.Find("a").First().AttrOr("href", "")),
				Image: resolve(base, cell.Find("img").First().AttrOr("src", "")),
			})
		})
		rows = append(rows, cells)
	})
	return rows, nil
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
