package webroute

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Route is a site's canonical address form.
type Route string

const (
	// RouteRoot means the apex domain is canonical (www redirects to it).
	RouteRoot Route = "root"
	// RouteWWW means the www form is canonical (apex redirects to it).
	RouteWWW Route = "www"
	// RouteNone means neither form answered.
	RouteNone Route = "none"
)

// Detector probes a domain's apex and www forms over HTTP and reports
// which one the site treats as canonical. The hosting provider's routing
// metadata is not authoritative for sources it does not manage, so the
// site itself is asked.
type Detector struct {
	client *http.Client
}

// NewDetector returns a Detector. A nil client gets a default with a
// 15-second overall timeout; redirects are followed (that is the point).
func NewDetector(client *http.Client) *Detector {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Detector{client: client}
}

// Detect reports the canonical route for domain.
//
// An apex that redirects to www while www answers for itself is "www"; the
// inverse is "root"; a domain where neither form answers is "none".
func (d *Detector) Detect(ctx context.Context, domain string) (Route, error) {
	apex := strings.TrimPrefix(domain, "www.")
	www := "www." + apex

	apexHost, apexErr := d.finalHost(ctx, apex)
	wwwHost, wwwErr := d.finalHost(ctx, www)

	switch {
	case apexErr != nil && wwwErr != nil:
		return RouteNone, nil
	case apexErr == nil && apexHost == www:
		return RouteWWW, nil
	case wwwErr == nil && wwwHost == apex:
		return RouteRoot, nil
	case apexErr == nil && apexHost == apex:
		return RouteRoot, nil
	case wwwErr == nil && wwwHost == www:
		return RouteWWW, nil
	}
	return RouteNone, nil
}

// finalHost issues a GET against host (https first, http as fallback),
// follows redirects, and returns the hostname the response effectively
// came from.
func (d *Detector) finalHost(ctx context.Context, host string) (string, error) {
	var lastErr error
	for _, scheme := range []string{"https", "http"} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, scheme+"://"+host+"/", nil)
		if err != nil {
			return "", fmt.Errorf("failed to build probe request: %w", err)
		}
		resp, err := d.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		return resp.Request.URL.Hostname(), nil
	}
	return "", lastErr
}
