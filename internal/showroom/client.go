package showroom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"evboard/internal/config"
	appLog "evboard/internal/log"
)

// ErrNotFound is returned when an endpoint answers 404.
var ErrNotFound = errors.New("showroom: not found")

// Client talks to the platform's public REST API.
type Client struct {
	baseURL   string
	userAgent string
	maxPages  int
	statuses  []int
	http      *http.Client
}

// NewClient builds a client from config. Per-call timeouts are applied by
// callers through the context; the http.Client timeout is a backstop.
func NewClient(cfg config.ShowroomConfig) *Client {
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 20
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		maxPages:  maxPages,
		statuses:  cfg.SearchStatuses,
		http:      newHTTPClient(cfg.Timeout),
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

func (c *Client) Name() string { return "showroom" }

// EventURL is the public page of an event.
func (c *Client) EventURL(urlKey string) string {
	return c.baseURL + "/event/" + url.PathEscape(urlKey)
}

// RoomURL is the public page of a room.
func (c *Client) RoomURL(urlKey string) string {
	return c.baseURL + "/r/" + url.PathEscape(urlKey)
}

// getJSON GETs path?query and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("showroom %s: http %d: %s", path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("showroom %s: decode: %w", path, err)
	}
	return nil
}

// flexInt decodes numbers that may arrive as JSON numbers, numeric strings
// or null.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexInt(n)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", s)
	}
	*f = flexInt(int64(v))
	return nil
}

// flexBool decodes booleans sent as true/false, 0/1 or "TRUE"/"false".
// Anything else is an error for the enclosing entry.
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	s := strings.ToLower(strings.Trim(strings.TrimSpace(string(b)), `"`))
	switch s {
	case "true", "1":
		*f = true
	case "false", "0", "", "null":
		*f = false
	default:
		return fmt.Errorf("not a boolean: %s", s)
	}
	return nil
}

func (f *flexBool) ptr() *bool {
	if f == nil {
		return nil
	}
	b := bool(*f)
	return &b
}

// nextPage decodes next_page, which is null on the last page.
type nextPage struct {
	NextPage *flexInt `json:"next_page"`
	LastPage flexInt  `json:"last_page"`
}

func (p nextPage) more(current int) bool {
	if p.NextPage != nil {
		return int(*p.NextPage) > current
	}
	return int(p.LastPage) > current
}

func logPageLimit(what string, limit int, kv ...any) {
	appLog.Warn("showroom pagination limit reached", append([]any{"what", what, "max_pages", limit}, kv...)...)
}
