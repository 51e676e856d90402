package blynk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnavailable means a pin or the reachability flag could not be read.
var ErrUnavailable = errors.New("device cloud value unavailable")

const maxBodySize = 4 << 10

// Client talks to the Blynk external HTTP API. Every call is a fresh request
// bounded by the client timeout.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ReadPin returns the raw value of a single pin. Any failure is reported as ErrUnavailable.
func (c *Client) ReadPin(ctx context.Context, token, pin string) (string, error) {
	endpoint := fmt.Sprintf("%s/get?token=%s&%s", c.baseURL, url.QueryEscape(token), url.QueryEscape(pin))

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: pin %s: %v", ErrUnavailable, pin, err)
	}
	return normalizeValue(body), nil
}

// IsReachable reports whether the hardware behind the token is connected.
// It is false on any transport error or on anything but an explicit "true".
func (c *Client) IsReachable(ctx context.Context, token string) bool {
	endpoint := fmt.Sprintf("%s/isHardwareConnected?token=%s", c.baseURL, url.QueryEscape(token))

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return false
	}
	return strings.TrimSpace(body) == "true"
}

// WritePin sets an actuator pin.
func (c *Client) WritePin(ctx context.Context, token, pin, value string) error {
	query := url.Values{}
	query.Set("token", token)
	query.Set("pin", pin)
	query.Set("value", value)

	if _, err := c.get(ctx, c.baseURL+"/update?"+query.Encode()); err != nil {
		return fmt.Errorf("failed to write pin %s: %w", pin, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, endpoint string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}

// normalizeValue unwraps the shapes the API uses for a scalar: 42, "42" or ["42"].
func normalizeValue(body string) string {
	v := strings.TrimSpace(body)
	if strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]") {
		v = strings.TrimSpace(v[1 : len(v)-1])
		if i := strings.Index(v, ","); i >= 0 {
			v = strings.TrimSpace(v[:i])
		}
	}
	v = strings.Trim(v, `"`)
	return strings.TrimSpace(v)
}
