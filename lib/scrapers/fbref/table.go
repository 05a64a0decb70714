package fbref

import (
	"context"
	"strings"

	"gktracker/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const matchLogsTableId = "matchlogs_all"

// Table is a header plus rows of cleaned cell text, every row has exactly
// len(Header) cells.
type Table struct {
	Header []string
	Rows   [][]string
}

// FetchTable fetches a match log page and extracts its full match log table.
// A page without the table yields an *ExtractionError.
func (c *Client) FetchTable(ctx context.Context, link string) (Table, error) {
	ctx, span := tracer.Start(ctx, "client:FetchTable")
	defer span.End()

	resolved, err := c.resolve(link)
	if err != nil {
		return Table{}, &ExtractionError{Url: link, Reason: err.Error()}
	}
	link = resolved
	doc, err := c.fetchPage(ctx, link)
	if err != nil {
		return Table{}, err
	}

	table, err := ParseMatchLogs(doc, link)
	if err != nil {
		c.tel.ReportBroken(report_client_parse_table, link, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to extract table")
		return Table{}, err
	}
	span.SetAttributes(
		attribute.Int("columns", len(table.Header)),
		attribute.Int("rows", len(table.Rows)),
	)
	return table, nil
}

func findMatchLogsTable(doc *goquery.Document) *goquery.Selection {
	sel := doc.Find("table#" + matchLogsTableId)
	if sel.Length() > 0 {
		return sel.First()
	}
	for _, hidden := range htmlutil.CommentedDocuments(doc, matchLogsTableId) {
		sel = hidden.Find("table#" + matchLogsTableId)
		if sel.Length() > 0 {
			return sel.First()
		}
	}
	return nil
}

// ParseMatchLogs extracts the match log table from an already fetched
// document, `link` is only used for error reporting.
func ParseMatchLogs(doc *goquery.Document, link string) (Table, error) {
	sel := findMatchLogsTable(doc)
	if sel == nil {
		return Table{}, &ExtractionError{Url: link, Reason: "table #" + matchLogsTableId + " not found"}
	}

	header := parseHeader(sel)
	if len(header) == 0 {
		return Table{}, &ExtractionError{Url: link, Reason: "table #" + matchLogsTableId + " has no header"}
	}

	table := Table{Header: header}
	sel.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		if row.HasClass("thead") || row.HasClass("spacer") {
			return
		}

		cells := make([]string, len(header))
		empty := true
		row.Children().Filter("th, td").Each(func(i int, cell *goquery.Selection) {
			if i >= len(cells) {
				return
			}
			cells[i] = cellText(cell)
			if cells[i] != "" {
				empty = false
			}
		})
		if empty {
			return
		}
		table.Rows = append(table.Rows, cells)
	})
	return table, nil
}

// parseHeader uses the last header row, the rows above it only group columns.
func parseHeader(table *goquery.Selection) []string {
	rows := table.Find("thead tr").Not(".over_header")
	if rows.Length() == 0 {
		return nil
	}

	var header []string
	rows.Last().Children().Filter("th, td").Each(func(_ int, cell *goquery.Selection) {
		name, ok := cell.Attr("data-stat")
		if !ok || strings.TrimSpace(name) == "" {
			name = htmlutil.CleanText(cell.Text())
		}
		header = append(header, strings.TrimSpace(name))
	})
	return header
}

func cellText(cell *goquery.Selection) string {
	return strings.ReplaceAll(htmlutil.CleanText(cell.Text()), ",", "")
}
