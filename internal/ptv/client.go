package ptv

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StatusError is returned when the API answers with a non-200 status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("timetable API returned status %d: %s", e.StatusCode, e.Body)
}

// Observer receives the outcome of every upstream request
type Observer interface {
	Observe(endpoint string, elapsed time.Duration, err error)
}

// Client is a timetable API client. Every request is signed with an
// HMAC-SHA1 of its path and query string using the developer key.
type Client struct {
	baseURL  string
	devID    string
	key      []byte
	timeout  time.Duration
	client   *http.Client
	observer Observer
}

// NewClient creates a new timetable API client
func NewClient(baseURL, devID, key string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		devID:   devID,
		key:     []byte(key),
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithObserver attaches an observer for request latency and failures
func (c *Client) WithObserver(o Observer) *Client {
	c.observer = o
	return c
}

// SignURL appends the developer id and request signature to an API path
// (which may already carry a query string).
func (c *Client) SignURL(path string) (string, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	raw := c.baseURL + path + sep + "devid=" + url.QueryEscape(c.devID)

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse request URL: %w", err)
	}

	mac := hmac.New(sha1.New, c.key)
	mac.Write([]byte(u.EscapedPath() + "?" + u.RawQuery))
	signature := strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))

	return raw + "&signature=" + signature, nil
}

// Departures fetches all departures of a route type from a stop, expanding runs and routes
func (c *Client) Departures(ctx context.Context, routeType, stopID int) (*DeparturesResponse, error) {
	path := fmt.Sprintf("/departures/route_type/%d/stop/%d?expand=Run&expand=Route", routeType, stopID)

	var resp DeparturesResponse
	if err := c.get(ctx, "departures", path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pattern fetches the full stopping pattern of a run, including skipped stops
func (c *Client) Pattern(ctx context.Context, routeType int, runRef string) (*PatternResponse, error) {
	path := fmt.Sprintf("/pattern/run/%s/route_type/%d?expand=Stop&expand=Run&include_skipped_stops=true",
		url.PathEscape(runRef), routeType)

	var resp PatternResponse
	if err := c.get(ctx, "pattern", path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SearchStops searches stops of the metropolitan train network by name
func (c *Client) SearchStops(ctx context.Context, term string) (*SearchResponse, error) {
	path := fmt.Sprintf("/search/%s?route_types=%d&include_outlets=false", url.PathEscape(term), RouteTypeTrain)

	var resp SearchResponse
	if err := c.get(ctx, "search", path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// get performs a signed GET request and decodes the JSON body into out
func (c *Client) get(ctx context.Context, endpoint, path string, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.Observe(endpoint, time.Since(start), err)
		}
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	signed, err := c.SignURL(path)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signed, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s request timed out: %w", endpoint, err)
		}
		return fmt.Errorf("failed to fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", endpoint, err)
	}
	return nil
}
