// Package metaserver talks to the game listing service: servers advertise
// themselves while waiting for players, clients query the list.
package metaserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

const maxResponseSize = 1 << 20

// Config holds the metaserver endpoint settings.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Client handles communication with the metaserver. The session cookie the
// metaserver hands out is kept and sent back on later requests.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new metaserver client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("metaserver url is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
	}, nil
}

// Healthcheck checks if the metaserver is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// Advertise announces a game reachable at addresses. The response lists
// the games the metaserver currently knows about.
func (c *Client) Advertise(ctx context.Context, version string, addresses []string) ([]Game, error) {
	form := url.Values{}
	form.Set("game[version]", version)
	for _, a := range addresses {
		form.Add("address[]", a)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, "advertise")
}

// Query lists the games advertised for version.
func (c *Client) Query(ctx context.Context, version string) ([]Game, error) {
	q := url.Values{}
	q.Set("game[version]", version)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, "query")
}

func (c *Client) do(req *http.Request, what string) ([]Game, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", what, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", what, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%s read failed: %w", what, err)
	}
	games, err := ParseGames(body)
	if err != nil {
		return nil, fmt.Errorf("%s response: %w", what, err)
	}
	return games, nil
}

// Advertiser adapts a Client to callers that only care whether the
// advertisement went through.
type Advertiser struct {
	Client *Client
}

func (a Advertiser) Advertise(ctx context.Context, version string, addresses []string) error {
	_, err := a.Client.Advertise(ctx, version, addresses)
	return err
}
