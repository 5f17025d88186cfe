package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
)

// ErrCacheMissing means a read was attempted before the profile's cache
// was populated. The wrapping error names the refresh command.
var ErrCacheMissing = errors.New("directory cache not populated")

// ErrNotInDirectory means the provider has no record matching the query.
var ErrNotInDirectory = errors.New("not found in directory")

// endpoints are the list resources the cache holds per profile.
var endpoints = []string{"site", "server", "system-user", "domain"}

// Client talks to the hosting provider's REST API on behalf of one
// profile. All reads go through the on-disk cache: step execution never
// queries the provider live except for the explicitly-live calls
// (mutations and the duplicate-site check).
type Client struct {
	profile Profile
	cache   *Cache
	http    *http.Client
	logger  zerolog.Logger

	// 429 handling: bounded retries with growing backoff.
	maxAttempts int
	backoffMin  time.Duration
	backoffMax  time.Duration
}

// NewClient returns a Client for profile backed by cache.
func NewClient(profile Profile, cache *Cache, logger zerolog.Logger) *Client {
	return &Client{
		profile:     profile,
		cache:       cache,
		http:        &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
		maxAttempts: 3,
		backoffMin:  2 * time.Second,
		backoffMax:  30 * time.Second,
	}
}

// ProfileName returns the name of the profile this client acts for.
func (c *Client) ProfileName() string {
	return c.profile.Name
}

// cached returns the cache body for an endpoint, or the remediation error
// when the profile has never been refreshed.
func (c *Client) cached(endpoint string) ([]byte, error) {
	data, found, err := c.cache.Get(c.profile.Name, endpoint)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w for profile %s endpoint %s (run `wpshift cache refresh --profile %s` first)",
			ErrCacheMissing, c.profile.Name, endpoint, c.profile.Name)
	}
	return data, nil
}

// Refresh fetches every list endpoint live and replaces the profile's
// cache with the responses.
func (c *Client) Refresh(ctx context.Context) error {
	for _, endpoint := range endpoints {
		body, err := c.request(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to refresh %s for profile %s: %w", endpoint, c.profile.Name, err)
		}
		if err := c.cache.Put(c.profile.Name, endpoint, body); err != nil {
			return err
		}
		c.logger.Debug().
			Str("profile", c.profile.Name).
			Str("endpoint", endpoint).
			Msg("cached directory endpoint")
	}
	return nil
}

// listPayload is the provider's standard list envelope.
type listPayload[T any] struct {
	Data []T `json:"data"`
}

func listFromCache[T any](c *Client, endpoint string) ([]T, error) {
	body, err := c.cached(endpoint)
	if err != nil {
		return nil, err
	}
	var payload listPayload[T]
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("corrupt cache for profile %s endpoint %s (re-run `wpshift cache refresh --profile %s`): %w",
			c.profile.Name, endpoint, c.profile.Name, err)
	}
	return payload.Data, nil
}

// FindSite looks a site up by domain in the cached site list.
func (c *Client) FindSite(ctx context.Context, domain string) (*Site, error) {
	sites, err := listFromCache[Site](c, "site")
	if err != nil {
		return nil, err
	}
	for i := range sites {
		if strings.EqualFold(sites[i].URL, domain) {
			return &sites[i], nil
		}
	}
	return nil, fmt.Errorf("site %s %w for profile %s", domain, ErrNotInDirectory, c.profile.Name)
}

// GetServer looks a server up by id in the cached server list.
func (c *Client) GetServer(ctx context.Context, id int64) (*Server, error) {
	servers, err := listFromCache[Server](c, "server")
	if err != nil {
		return nil, err
	}
	for i := range servers {
		if servers[i].ID == id {
			return &servers[i], nil
		}
	}
	return nil, fmt.Errorf("server %d %w for profile %s", id, ErrNotInDirectory, c.profile.Name)
}

// GetSystemUser looks a system user up by id in the cached list.
func (c *Client) GetSystemUser(ctx context.Context, id int64) (*SystemUser, error) {
	users, err := listFromCache[SystemUser](c, "system-user")
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}
	return nil, fmt.Errorf("system user %d %w for profile %s", id, ErrNotInDirectory, c.profile.Name)
}

// FindDomain looks a domain up by name in the cached domain list.
func (c *Client) FindDomain(ctx context.Context, domain string) (*Domain, error) {
	domains, err := listFromCache[Domain](c, "domain")
	if err != nil {
		return nil, err
	}
	for i := range domains {
		if strings.EqualFold(domains[i].URL, domain) {
			return &domains[i], nil
		}
	}
	return nil, fmt.Errorf("domain %s %w for profile %s", domain, ErrNotInDirectory, c.profile.Name)
}

// SiteExistsLive asks the provider directly whether a site exists,
// bypassing the cache. Used for the duplicate-site check, where stale data
// would be dangerous.
func (c *Client) SiteExistsLive(ctx context.Context, domain string) (bool, error) {
	body, err := c.request(ctx, http.MethodGet, "site", nil)
	if err != nil {
		return false, err
	}
	var payload listPayload[Site]
	if err := json.Unmarshal(body, &payload); err != nil {
		return false, fmt.Errorf("unexpected site list response: %w", err)
	}
	for _, s := range payload.Data {
		if strings.EqualFold(s.URL, domain) {
			return true, nil
		}
	}
	return false, nil
}

// SetRouting changes a domain's routing mode ("none", "www" or "root").
// Always a live call.
func (c *Client) SetRouting(ctx context.Context, domainID int64, routing string) error {
	body := map[string]string{"routing": routing}
	_, err := c.request(ctx, http.MethodPut, fmt.Sprintf("domain/%d/route", domainID), body)
	if err != nil {
		return fmt.Errorf("failed to set routing for domain %d: %w", domainID, err)
	}
	return nil
}

// EnableSSL triggers SSL issuance for a domain. Always a live call; the
// caller is responsible for confirming DNS already points at the
// destination.
func (c *Client) EnableSSL(ctx context.Context, domainID int64) error {
	body := map[string]bool{"ssl": true}
	_, err := c.request(ctx, http.MethodPut, fmt.Sprintf("domain/%d/ssl", domainID), body)
	if err != nil {
		return fmt.Errorf("failed to enable SSL for domain %d: %w", domainID, err)
	}
	return nil
}

// request performs one provider API call, retrying a bounded number of
// times with growing backoff when rate-limited. 429 is the only
// automatically-retried failure in the whole tool.
func (c *Client) request(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody []byte
	if payload != nil {
		var err error
		reqBody, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	b := &backoff.Backoff{
		Min:    c.backoffMin,
		Max:    c.backoffMax,
		Factor: 2,
		Jitter: true,
	}

	url := strings.TrimRight(c.profile.URL, "/") + "/" + path
	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(reqBody))
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.profile.Token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("provider API request failed: %w", err)
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("failed to read provider API response: %w", readErr)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests && attempt < c.maxAttempts:
			wait := b.Duration()
			c.logger.Warn().
				Str("profile", c.profile.Name).
				Str("path", path).
				Dur("wait", wait).
				Int("attempt", attempt).
				Msg("provider API rate-limited, backing off")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		case resp.StatusCode >= 400:
			return nil, fmt.Errorf("provider API %s %s returned %s: %s",
				method, path, resp.Status, strings.TrimSpace(string(body)))
		}
		return body, nil
	}
}
