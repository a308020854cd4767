// Package client is a typed Go client for the autopoiesim server API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/protocell/autopoiesim/internal/autopoiesis"
	"github.com/protocell/autopoiesim/internal/brownian"
)

// WorldSpec describes the world to create: chemistry configuration, medium
// configuration and the initial population.
type WorldSpec struct {
	Chemistry      autopoiesis.Config `json:"chemistry"`
	Medium         brownian.Config    `json:"medium"`
	SeedCatalysts  int                `json:"seed_catalysts"`
	SeedSubstrates int                `json:"seed_substrates"`
}

// DefaultWorldSpec returns the spec the server applies when a section is
// omitted.
func DefaultWorldSpec() WorldSpec {
	return WorldSpec{
		Chemistry:      autopoiesis.DefaultConfig(),
		Medium:         brownian.DefaultConfig(),
		SeedCatalysts:  1,
		SeedSubstrates: 200,
	}
}

// WorldStats is the response of the stats endpoint.
type WorldStats struct {
	State    string                `json:"state"`
	Tick     int64                 `json:"tick"`
	Counts   autopoiesis.Counts    `json:"counts"`
	LastTick autopoiesis.TickStats `json:"last_tick"`
}

// NotifierInfo describes one registered notifier.
type NotifierInfo struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Client talks to an autopoiesim server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the server at baseURL
// (e.g. "http://localhost:8080").
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewWithHTTPClient creates a client using a caller-supplied http.Client.
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

func (c *Client) do(ctx context.Context, method string, elems []string, query url.Values, body, out any) error {
	u, err := url.JoinPath(c.baseURL, elems...)
	if err != nil {
		return fmt.Errorf("failed to build URL: %w", err)
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(msg))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Health checks the server health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, []string{"healthz"}, nil, nil, nil)
}

// CreateWorld creates (or replaces) the server's world from the spec and
// returns the initial census.
func (c *Client) CreateWorld(ctx context.Context, spec WorldSpec) (autopoiesis.Counts, error) {
	var resp struct {
		Counts autopoiesis.Counts `json:"counts"`
	}
	if err := c.do(ctx, http.MethodPost, []string{"world"}, nil, spec, &resp); err != nil {
		return autopoiesis.Counts{}, err
	}
	return resp.Counts, nil
}

// DeleteWorld removes the server's world.
func (c *Client) DeleteWorld(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, []string{"world"}, nil, nil, nil)
}

// Step advances the world n ticks and returns the last tick's stats.
func (c *Client) Step(ctx context.Context, n int) (autopoiesis.TickStats, error) {
	query := url.Values{}
	if n > 1 {
		query.Set("n", strconv.Itoa(n))
	}
	var stats autopoiesis.TickStats
	if err := c.do(ctx, http.MethodPost, []string{"world", "step"}, query, nil, &stats); err != nil {
		return autopoiesis.TickStats{}, err
	}
	return stats, nil
}

// Stats returns the current world statistics.
func (c *Client) Stats(ctx context.Context) (WorldStats, error) {
	var stats WorldStats
	if err := c.do(ctx, http.MethodGet, []string{"world", "stats"}, nil, nil, &stats); err != nil {
		return WorldStats{}, err
	}
	return stats, nil
}

// Particles lists every live particle.
func (c *Client) Particles(ctx context.Context) ([]autopoiesis.Particle, error) {
	var particles []autopoiesis.Particle
	if err := c.do(ctx, http.MethodGet, []string{"world", "particles"}, nil, nil, &particles); err != nil {
		return nil, err
	}
	return particles, nil
}

// Bonds lists every live bond.
func (c *Client) Bonds(ctx context.Context) ([]autopoiesis.Bond, error) {
	var bonds []autopoiesis.Bond
	if err := c.do(ctx, http.MethodGet, []string{"world", "bonds"}, nil, nil, &bonds); err != nil {
		return nil, err
	}
	return bonds, nil
}

// SaveSnapshot persists a snapshot of the current world state server-side and
// returns its tick.
func (c *Client) SaveSnapshot(ctx context.Context) (int64, error) {
	var resp struct {
		Tick int64 `json:"tick"`
	}
	if err := c.do(ctx, http.MethodPost, []string{"world", "snapshot"}, nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Tick, nil
}

// Snapshot fetches the persisted snapshot at the given tick.
func (c *Client) Snapshot(ctx context.Context, tick int64) (autopoiesis.Snapshot, error) {
	query := url.Values{}
	query.Set("tick", strconv.FormatInt(tick, 10))
	var snap autopoiesis.Snapshot
	if err := c.do(ctx, http.MethodGet, []string{"world", "snapshot"}, query, nil, &snap); err != nil {
		return autopoiesis.Snapshot{}, err
	}
	return snap, nil
}

// LatestSnapshot fetches the most recent persisted snapshot.
func (c *Client) LatestSnapshot(ctx context.Context) (autopoiesis.Snapshot, error) {
	var snap autopoiesis.Snapshot
	if err := c.do(ctx, http.MethodGet, []string{"world", "snapshot"}, nil, nil, &snap); err != nil {
		return autopoiesis.Snapshot{}, err
	}
	return snap, nil
}

// Notifiers lists the registered notifiers.
func (c *Client) Notifiers(ctx context.Context) ([]NotifierInfo, error) {
	var resp struct {
		Notifiers []NotifierInfo `json:"notifiers"`
	}
	if err := c.do(ctx, http.MethodGet, []string{"notifiers"}, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Notifiers, nil
}

// RegisterWebhook registers a webhook notifier receiving per-tick events.
// headers may be nil.
func (c *Client) RegisterWebhook(ctx context.Context, id, webhookURL string, headers map[string]string) error {
	cfg := map[string]any{"url": webhookURL}
	if len(headers) > 0 {
		h := make(map[string]any, len(headers))
		for k, v := range headers {
			h[k] = v
		}
		cfg["headers"] = h
	}
	body := map[string]any{
		"type":   "webhook",
		"id":     id,
		"config": cfg,
	}
	return c.do(ctx, http.MethodPost, []string{"notifiers"}, nil, body, nil)
}

// UnregisterNotifier removes a registered notifier by id.
func (c *Client) UnregisterNotifier(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, []string{"notifiers", id}, nil, nil, nil)
}
