// Package faulttolerant fetches upstream documents over HTTP with retries.
package faulttolerant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// NetworkError reports a transport failure or a non-200 response.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("network error: %s: bad response: %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("network error: %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func IsNetworkError(err error) bool {
	var networkErr *NetworkError
	return errors.As(err, &networkErr)
}

type Client struct {
	HTTP       *http.Client
	MaxRetries uint64
	Backoff    time.Duration
}

// NewClient retries 3 times with an exponential backoff starting at 1s.
func NewClient() *Client {
	return &Client{
		HTTP:       &http.Client{Timeout: time.Minute},
		MaxRetries: 3,
		Backoff:    time.Second,
	}
}

func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, "", "")
}

func (c *Client) PostForm(ctx context.Context, url string, form url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodPost, url, "application/x-www-form-urlencoded", form.Encode())
}

func (c *Client) do(ctx context.Context, method, url, contentType, body string) ([]byte, error) {
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	var content []byte
	backoff := retry.WithMaxRetries(c.MaxRetries, retry.NewExponential(c.Backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var reqBody io.Reader
		if body != "" {
			reqBody = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return err
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(&NetworkError{URL: url, Err: err})
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode/100 == 5:
			return retry.RetryableError(&NetworkError{URL: url, StatusCode: resp.StatusCode})
		case resp.StatusCode != http.StatusOK:
			return &NetworkError{URL: url, StatusCode: resp.StatusCode}
		}

		content, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(&NetworkError{URL: url, Err: err})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}
