package securityfocus

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/openwebvulndb/openwebvulndb-tools/importer/faulttolerant"
)

const (
	DefaultBaseURL = "https://www.securityfocus.com"
	PageSize       = 30
)

// Client fetches listing pages and advisory tabs.
type Client struct {
	BaseURL string
	Vendor  string
	HTTP    *faulttolerant.Client
}

func NewClient() *Client {
	return &Client{
		BaseURL: DefaultBaseURL,
		Vendor:  "WordPress",
		HTTP:    faulttolerant.NewClient(),
	}
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

// ListPage posts the search form for page (zero based) and returns the
// bugtraq ids it links to.
func (c *Client) ListPage(ctx context.Context, page int) ([]string, error) {
	form := url.Values{
		"op":      {"display_list"},
		"c":       {"12"},
		"vendor":  {c.Vendor},
		"title":   {""},
		"version": {""},
		"CVE":     {""},
		"o":       {strconv.Itoa(page * PageSize)},
		"l":       {strconv.Itoa(PageSize)},
	}
	body, err := c.HTTP.PostForm(ctx, c.base()+"/cgi-bin/index.cgi", form)
	if err != nil {
		return nil, fmt.Errorf("could not list page %d: %w", page, err)
	}
	return ParseListing(bytes.NewReader(body))
}

func (c *Client) TabURL(id, tab string) string {
	return fmt.Sprintf("%s/bid/%s/%s", c.base(), id, tab)
}

// FetchAdvisory reads the five tabs of bugtraq id. Any failing tab fails the
// whole advisory.
func (c *Client) FetchAdvisory(ctx context.Context, id string) (*Advisory, error) {
	adv := &Advisory{ID: id}
	for _, tab := range Tabs {
		body, err := c.HTTP.Get(ctx, c.TabURL(id, tab))
		if err != nil {
			return nil, fmt.Errorf("could not fetch %s tab of %s: %w", tab, id, err)
		}

		reader := bytes.NewReader(body)
		switch tab {
		case "info":
			err = ParseInfo(reader, adv)
		case "references":
			err = ParseReferences(reader, adv)
		case "discuss":
			adv.Discussion, err = ParseText(reader)
		case "solution":
			adv.Solution, err = ParseText(reader)
		case "exploit":
			adv.Exploit, err = ParseText(reader)
		}
		if err != nil {
			return nil, fmt.Errorf("could not parse %s tab of %s: %w", tab, id, err)
		}
	}
	adv.ID = id
	return adv, nil
}
