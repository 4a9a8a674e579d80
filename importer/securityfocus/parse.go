package securityfocus

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/moznion/go-optional"
	"github.com/openwebvulndb/openwebvulndb-tools/vulndb"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const dateLayout = "Jan 02 2006 03:04PM"

var bidLink = regexp.MustCompile(`/bid/(\d+)/?$`)

func parse(r io.Reader) (*html.Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("could not parse html: %w", err)
	}
	return doc, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var nodes []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if match(n) {
			nodes = append(nodes, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return nodes
}

func isElement(a atom.Atom) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == a
	}
}

// segments returns the non blank text runs of n split at <br> elements.
func segments(n *html.Node) []string {
	var out []string
	var current strings.Builder
	flush := func() {
		text := strings.Join(strings.Fields(current.String()), " ")
		if text != "" {
			out = append(out, text)
		}
		current.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			current.WriteString(n.Data)
			current.WriteString(" ")
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	flush()
	return out
}

func text(n *html.Node) string {
	return strings.Join(segments(n), " ")
}

func content(doc *html.Node) (*html.Node, error) {
	div := find(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Div && attr(n, "id") == "vulnerability"
	})
	if div == nil {
		return nil, fmt.Errorf("no vulnerability section found")
	}
	return div, nil
}

func title(section *html.Node) string {
	span := find(section, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Span && hasClass(n, "title")
	})
	if span == nil {
		return ""
	}
	return text(span)
}

// ParseInfo fills adv from the info tab.
func ParseInfo(r io.Reader, adv *Advisory) error {
	doc, err := parse(r)
	if err != nil {
		return err
	}
	section, err := content(doc)
	if err != nil {
		return err
	}

	adv.Title = title(section)
	for _, row := range findAll(section, isElement(atom.Tr)) {
		cells := findAll(row, isElement(atom.Td))
		if len(cells) < 2 {
			continue
		}
		label := strings.TrimSuffix(strings.TrimSpace(text(cells[0])), ":")
		values := segments(cells[1])
		applyField(adv, label, values)
	}
	return nil
}

func applyField(adv *Advisory, label string, values []string) {
	first := ""
	if len(values) > 0 {
		first = values[0]
	}

	switch strings.ToLower(label) {
	case "bugtraq id":
		if adv.ID == "" {
			adv.ID = first
		}
	case "class":
		adv.Class = first
	case "cve":
		for _, value := range values {
			adv.CVEs = append(adv.CVEs, strings.Fields(value)...)
		}
	case "remote":
		adv.Remote = parseYesNo(first)
	case "local":
		adv.Local = parseYesNo(first)
	case "published":
		adv.Published = parseDate(adv.ID, label, first)
	case "updated":
		adv.Updated = parseDate(adv.ID, label, first)
	case "credit":
		adv.Credit = strings.Join(values, " ")
	case "vulnerable":
		adv.Vulnerable = append(adv.Vulnerable, values...)
	case "not vulnerable":
		adv.NotVulnerable = append(adv.NotVulnerable, values...)
	}
}

func parseYesNo(value string) optional.Option[bool] {
	switch strings.ToLower(value) {
	case "yes":
		return optional.Some(true)
	case "no":
		return optional.Some(false)
	}
	return optional.None[bool]()
}

func parseDate(id, label, value string) optional.Option[vulndb.Timestamp] {
	if value == "" {
		return optional.None[vulndb.Timestamp]()
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		slog.Warn("ignoring unparseable date", "bid", id, "field", label, "value", value)
		return optional.None[vulndb.Timestamp]()
	}
	return optional.Some(vulndb.NewTimestamp(t))
}

// ParseReferences collects the links of the references tab.
func ParseReferences(r io.Reader, adv *Advisory) error {
	doc, err := parse(r)
	if err != nil {
		return err
	}
	section, err := content(doc)
	if err != nil {
		return err
	}

	for _, link := range findAll(section, isElement(atom.A)) {
		href := strings.TrimSpace(attr(link, "href"))
		if href == "" {
			continue
		}
		adv.References = append(adv.References, Reference{Description: text(link), URL: href})
	}
	return nil
}

// ParseText returns the prose of the discuss, solution and exploit tabs.
func ParseText(r io.Reader) (string, error) {
	doc, err := parse(r)
	if err != nil {
		return "", err
	}
	section, err := content(doc)
	if err != nil {
		return "", err
	}

	heading := title(section)
	body := strings.TrimSpace(strings.TrimPrefix(text(section), heading))
	return body, nil
}

// ParseListing returns the bugtraq ids linked from a listing page, in page
// order.
func ParseListing(r io.Reader) ([]string, error) {
	doc, err := parse(r)
	if err != nil {
		return nil, err
	}

	var ids []string
	seen := map[string]bool{}
	for _, link := range findAll(doc, isElement(atom.A)) {
		match := bidLink.FindStringSubmatch(attr(link, "href"))
		if match == nil || seen[match[1]] {
			continue
		}
		seen[match[1]] = true
		ids = append(ids, match[1])
	}
	return ids, nil
}
