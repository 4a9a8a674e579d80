package importer

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/openwebvulndb/openwebvulndb-tools/importer/faulttolerant"
)

const CVEFeedEndpoint = "https://cve.circl.lu/api/%s"

// FeedClient downloads batched CVE documents.
type FeedClient struct {
	once     sync.Once
	Endpoint string
	Client   *faulttolerant.Client
}

func (f *FeedClient) init() {
	f.once.Do(func() {
		if f.Endpoint == "" {
			f.Endpoint = CVEFeedEndpoint
		}
		if f.Client == nil {
			f.Client = faulttolerant.NewClient()
		}
	})
}

type RequestOptionsFunc func(url.Values) error

func Vendor(vendor string) RequestOptionsFunc {
	return func(q url.Values) error {
		q.Set("vendor", vendor)
		return nil
	}
}

func Product(product string) RequestOptionsFunc {
	return func(q url.Values) error {
		q.Set("product", product)
		return nil
	}
}

func Limit(nr int) RequestOptionsFunc {
	return func(q url.Values) error {
		if nr <= 0 {
			return fmt.Errorf("limit must be positive, got %d", nr)
		}
		q.Set("limit", strconv.Itoa(nr))
		return nil
	}
}

func ModifiedSince(date time.Time) RequestOptionsFunc {
	return func(q url.Values) error {
		q.Set("since", date.UTC().Format(time.RFC3339))
		return nil
	}
}

func buildUrl(endpoint, api string, options []RequestOptionsFunc) (string, error) {
	apiUrl, err := url.Parse(fmt.Sprintf(endpoint, api))
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint: %w", err)
	}

	query := url.Values{}
	for _, option := range options {
		err = option(query)
		if err != nil {
			return "", fmt.Errorf("failed to apply option: %w", err)
		}
	}

	apiUrl.RawQuery = query.Encode()
	return apiUrl.String(), nil
}

func (f *FeedClient) GetCVEs(ctx context.Context, options ...RequestOptionsFunc) ([]CVEEntry, error) {
	f.init()

	requestUrl, err := buildUrl(f.Endpoint, "search", options)
	if err != nil {
		return nil, fmt.Errorf("failed to build url: %w", err)
	}

	body, err := f.Client.Get(ctx, requestUrl)
	if err != nil {
		return nil, fmt.Errorf("failure in HTTP request: %w", err)
	}

	return ParseCVEFeed(body)
}
