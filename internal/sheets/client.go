// Package sheets verifies that a spreadsheet document is reachable before a
// target record is created.
package sheets

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"adminbot/pkg/logx"
)

const defaultBaseURL = "https://docs.google.com/spreadsheets/d"

// Verifier answers whether a document/worksheet pair is reachable.
type Verifier interface {
	VerifyConnectivity(ctx context.Context, documentID, worksheet string) (bool, string)
}

// Client probes the spreadsheet service with a bounded GET. A 2xx answer
// means reachable; anything else (including transport errors) is reported
// with a human-readable message and never as a Go error, since an
// unreachable document is an expected outcome during target registration.
type Client struct {
	baseURL string
	http    *http.Client
	log     logx.Logger
}

type Option func(*Client)

// WithBaseURL overrides the service endpoint (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if s := strings.TrimRight(strings.TrimSpace(u), "/"); s != "" {
			c.baseURL = s
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func NewClient(log logx.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 8 * time.Second},
		log:     log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) VerifyConnectivity(ctx context.Context, documentID, worksheet string) (bool, string) {
	probe := fmt.Sprintf("%s/%s/gviz/tq?sheet=%s", c.baseURL, url.PathEscape(documentID), url.QueryEscape(worksheet))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probe, nil)
	if err != nil {
		return false, "malformed probe request"
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if !c.log.IsZero() {
			c.log.Warn("sheet probe failed", logx.String("doc", documentID), logx.Err(err))
		}
		return false, "document is unreachable"
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		return true, "ok"
	}
	if !c.log.IsZero() {
		c.log.Warn("sheet probe rejected",
			logx.String("doc", documentID), logx.Int("status", resp.StatusCode))
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return false, "document not found"
	case http.StatusForbidden, http.StatusUnauthorized:
		return false, "document access denied"
	default:
		return false, fmt.Sprintf("service answered HTTP %d", resp.StatusCode)
	}
}
