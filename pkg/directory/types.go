package directory

import "strconv"

// Site is the provider's record of a hosted site.
type Site struct {
	ID           int64  `json:"id"`
	URL          string `json:"url"`
	ServerID     int64  `json:"server_id"`
	SystemUserID int64  `json:"system_user_id"`
}

// Server is the provider's record of a host.
type Server struct {
	ID    int64  `json:"id"`
	IP    string `json:"ip"`
	Label string `json:"label"`
}

// SystemUser is the provider's record of a site's unix user.
type SystemUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Domain is the provider's record of a domain attached to a site, with its
// routing mode ("none", "www" or "root") and SSL state.
type Domain struct {
	ID               int64  `json:"id"`
	URL              string `json:"url"`
	SiteID           int64  `json:"site_id"`
	Routing          string `json:"routing"`
	SSLEnabled       bool   `json:"ssl"`
	DNSIntegrationID int64  `json:"dns_integration_id"`
}

// itoa keeps identifier-to-fact conversion in one place; the state
// document stores everything as strings.
func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

// IDString returns the site identifier as a state-document fact.
func (s *Site) IDString() string { return itoa(s.ID) }

// ServerIDString returns the server identifier as a state-document fact.
func (s *Site) ServerIDString() string { return itoa(s.ServerID) }

// SystemUserIDString returns the system-user identifier as a fact.
func (s *Site) SystemUserIDString() string { return itoa(s.SystemUserID) }

// IDString returns the server identifier as a state-document fact.
func (s *Server) IDString() string { return itoa(s.ID) }

// IDString returns the domain identifier as a state-document fact.
func (d *Domain) IDString() string { return itoa(d.ID) }
