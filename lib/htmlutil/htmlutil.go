package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText collapses runs of whitespace and strips the non-printable
// garbage county record pages tend to carry.
func CleanText(s string) string {
	s = removeNonPrintable(s)
	s = innerWhitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// TableRows extracts the cell text of every <tr> in the selection,
// skipping rows with no <td> cells (header rows).
func TableRows(table *goquery.Selection) [][]string {
	var rows [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, CleanText(td.Text()))
		})
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	})
	return rows
}

// Anchor is a link found inside a record row.
type Anchor struct {
	Name string
	Href string
}

func GetAnchors(sel *goquery.Selection) []Anchor {
	var anchors []Anchor
	sel.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		anchors = append(anchors, Anchor{
			Name: CleanText(a.Text()),
			Href: href,
		})
	})
	return anchors
}
