package seed

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wpshift/wpshift/pkg/state"
)

// Seed is a flat set of operator-supplied facts, keyed by the same names
// the state document uses. It exists for sources the hosting provider does
// not manage, where the directory service has nothing to say.
type Seed map[string]string

// Load reads a seed file, dispatching on extension: .json for a flat JSON
// object of strings, .csv for key,value rows.
func Load(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return parseJSON(data)
	case ".csv":
		return parseCSV(data)
	default:
		return nil, fmt.Errorf("unsupported seed file format %q (use .json or .csv)", filepath.Ext(path))
	}
}

func parseJSON(data []byte) (Seed, error) {
	var s Seed
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid JSON seed file: %w", err)
	}
	return s, nil
}

func parseCSV(data []byte) (Seed, error) {
	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid CSV seed file: %w", err)
	}
	s := make(Seed, len(records))
	for i, rec := range records {
		if len(rec) != 2 {
			return nil, fmt.Errorf("CSV seed file row %d: want key,value, got %d fields", i+1, len(rec))
		}
		s[strings.TrimSpace(rec[0])] = strings.TrimSpace(rec[1])
	}
	return s, nil
}

// required are the facts a migration cannot start without when the
// directory service is bypassed.
var required = []string{"source_ip", "source_user"}

// Validate checks that the seed carries the minimum facts for a custom
// source.
func (s Seed) Validate() error {
	var missing []string
	for _, key := range required {
		if s[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("seed file is missing required keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Apply copies the seed into facts. Known keys land in their typed fields;
// anything this version does not recognize is preserved in Extra so newer
// seed formats are not silently dropped.
func (s Seed) Apply(f *state.Facts) {
	for key, value := range s {
		if value == "" {
			continue
		}
		switch key {
		case "source_ip":
			f.SourceIP = value
		case "source_port":
			f.SourcePort = value
		case "source_user":
			f.SourceUser = value
		case "source_web_root":
			f.SourceWebRoot = value
		case "source_config_path":
			f.SourceConfigPath = value
		case "dest_ip":
			f.DestIP = value
		case "dest_port":
			f.DestPort = value
		case "dest_user":
			f.DestUser = value
		case "dest_web_root":
			f.DestWebRoot = value
		case "dest_config_path":
			f.DestConfigPath = value
		case "dest_site_id":
			f.DestSiteID = value
		case "dest_server_id":
			f.DestServerID = value
		case "dest_system_user":
			f.DestSystemUser = value
		case "route":
			f.Route = value
		default:
			if f.Extra == nil {
				f.Extra = make(map[string]string)
			}
			f.Extra[key] = value
		}
	}
}
