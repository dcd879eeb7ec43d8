// Package geo resolves connecting IP addresses to approximate locations using
// the FindIP lookup API.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/match-session-worker/internal/errors"
	"github.com/openclaw/match-session-worker/internal/model"
)

const serviceName = "findip"

// maxResponseBytes caps how much of a lookup response is read.
const maxResponseBytes = 1 << 20

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Enabled reports whether lookups will reach the remote API.
func (c *Client) Enabled() bool {
	return c.apiKey != "" && c.baseURL != ""
}

// Lookup returns the location for ip. It returns nil without error when
// lookups are disabled or ip is not a public address.
func (c *Client) Lookup(ctx context.Context, ip string) (*model.LocationData, error) {
	if !c.Enabled() || !isPublicIP(ip) {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/%s?token=%s", c.baseURL, url.PathEscape(ip), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.Enrichment(serviceName, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, apperrors.Enrichment(serviceName, fmt.Errorf("lookup request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.Enrichment(serviceName, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.Enrichment(serviceName, fmt.Errorf("lookup failed with status %d", resp.StatusCode))
	}

	var payload lookupResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.Enrichment(serviceName, fmt.Errorf("decode response: %w", err))
	}

	log.Debug().
		Str("ip", ip).
		Dur("elapsed", elapsed).
		Msg("geo lookup completed")

	data := payload.toLocationData()
	data.IP = ip
	return &data, nil
}

func isPublicIP(raw string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsGlobalUnicast() && !addr.IsPrivate()
}
