package schedule

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPCalendar talks to the dispatch calendar service. A zero base URL
// means the calendar is disabled and every slot reads as free.
type HTTPCalendar struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPCalendar creates a calendar client. An empty baseURL disables it.
func NewHTTPCalendar(baseURL, apiKey string) *HTTPCalendar {
	return &HTTPCalendar{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// NewHTTPCalendarWithClient creates a calendar client with a custom HTTP client.
func NewHTTPCalendarWithClient(baseURL, apiKey string, client *http.Client) *HTTPCalendar {
	return &HTTPCalendar{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: client,
	}
}

// Available reports whether the calendar is configured.
func (c *HTTPCalendar) Available(ctx context.Context) bool {
	return c.baseURL != ""
}

// BusyIntervals returns the busy spans inside [from, to).
func (c *HTTPCalendar) BusyIntervals(ctx context.Context, from, to time.Time) ([]Interval, error) {
	q := url.Values{}
	q.Set("from", from.Format(time.RFC3339))
	q.Set("to", to.Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/v1/busy?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("calendar error %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		Busy []Interval `json:"busy"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return out.Busy, nil
}

// CreateBooking writes a confirmed appointment and returns its ID.
func (c *HTTPCalendar) CreateBooking(ctx context.Context, b Booking) (string, error) {
	if !c.Available(ctx) {
		return "", fmt.Errorf("calendar disabled")
	}

	body, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("marshal booking: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/bookings", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("booking request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		errBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("booking error %d: %s", resp.StatusCode, string(errBody))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	return out.ID, nil
}
