package state

import (
	"time"
)

// CustomProfile is the sentinel source profile recorded when the source is
// not a provider-managed server and is reachable only over SSH (facts come
// from an operator-supplied seed file).
const CustomProfile = "custom"

// Facts holds everything the migration has discovered about a site so far.
// Every value is a string, numeric identifiers included, so the persisted
// document stays uniform and diff-friendly. Fields are written by exactly
// one step and read by later ones; they are overwritten on re-run, never
// deleted.
type Facts struct {
	SourceIP   string `json:"source_ip,omitempty"`
	SourcePort string `json:"source_port,omitempty"`
	SourceUser string `json:"source_user,omitempty"`
	DestIP     string `json:"dest_ip,omitempty"`
	DestPort   string `json:"dest_port,omitempty"`
	DestUser   string `json:"dest_user,omitempty"`

	SourceSiteID     string `json:"source_site_id,omitempty"`
	SourceServerID   string `json:"source_server_id,omitempty"`
	SourceSystemUser string `json:"source_system_user,omitempty"`
	DestSiteID       string `json:"dest_site_id,omitempty"`
	DestServerID     string `json:"dest_server_id,omitempty"`
	DestSystemUser   string `json:"dest_system_user,omitempty"`

	SourceWebRoot    string `json:"source_web_root,omitempty"`
	SourceConfigPath string `json:"source_config_path,omitempty"`
	DestWebRoot      string `json:"dest_web_root,omitempty"`
	DestConfigPath   string `json:"dest_config_path,omitempty"`

	SourceDBName      string `json:"source_db_name,omitempty"`
	SourceDBUser      string `json:"source_db_user,omitempty"`
	SourceDBPass      string `json:"source_db_pass,omitempty"`
	SourceTablePrefix string `json:"source_table_prefix,omitempty"`
	DestDBName        string `json:"dest_db_name,omitempty"`
	DestDBUser        string `json:"dest_db_user,omitempty"`
	DestDBPass        string `json:"dest_db_pass,omitempty"`
	DestTablePrefix   string `json:"dest_table_prefix,omitempty"`

	// Route is the site's canonical address form: "root", "www" or "none".
	Route string `json:"route,omitempty"`

	SourceDomainID string `json:"source_domain_id,omitempty"`
	DestDomainID   string `json:"dest_domain_id,omitempty"`
	SourceSSL      string `json:"source_ssl,omitempty"`

	// SyncMode records how the file sync ran: "direct" or "relay".
	SyncMode string `json:"sync_mode,omitempty"`

	// NginxIncludes is the comma-joined inventory of non-standard config
	// fragments found on the source.
	NginxIncludes string `json:"nginx_includes,omitempty"`

	// MarkerID is the migration marker planted in the source database
	// before the dump.
	MarkerID string `json:"marker_id,omitempty"`

	// Extra carries seed-file fields this version does not know about, so
	// newer seed formats survive a round trip through the state document.
	Extra map[string]string `json:"extra,omitempty"`
}

// Migration is the persisted record of one site migration attempt. It is a
// singleton per site domain.
type Migration struct {
	Site           string    `json:"site"`
	SourceProfile  string    `json:"source_profile"`
	DestProfile    string    `json:"dest_profile"`
	Started        time.Time `json:"started"`
	LastUpdated    time.Time `json:"last_updated"`
	CompletedSteps []string  `json:"completed_steps"`
	Facts          Facts     `json:"data"`
}

// MarkStepComplete records a step as done. Adding the same step twice is a
// no-op; completed_steps is a membership set, not a history.
func (m *Migration) MarkStepComplete(stepID string) {
	if m.IsStepComplete(stepID) {
		return
	}
	m.CompletedSteps = append(m.CompletedSteps, stepID)
}

// IsStepComplete reports whether stepID has been recorded as done.
func (m *Migration) IsStepComplete(stepID string) bool {
	for _, s := range m.CompletedSteps {
		if s == stepID {
			return true
		}
	}
	return false
}

// dedupeSteps removes duplicate completed-step entries in place, keeping
// first occurrences, and reports how many were dropped.
func (m *Migration) dedupeSteps() int {
	seen := make(map[string]bool, len(m.CompletedSteps))
	kept := m.CompletedSteps[:0]
	removed := 0
	for _, s := range m.CompletedSteps {
		if seen[s] {
			removed++
			continue
		}
		seen[s] = true
		kept = append(kept, s)
	}
	m.CompletedSteps = kept
	return removed
}
