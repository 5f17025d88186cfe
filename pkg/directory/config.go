package directory

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is one named credential set for the hosting provider's API.
type Profile struct {
	Name  string `yaml:"-"`
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// Config is the operator's profiles file (profiles.yml in the data dir).
type Config struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// LoadConfig reads the profiles file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no profiles file at %s (create it with a `profiles:` map of url/token entries)", path)
		}
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid profiles file %s: %w", path, err)
	}
	for name, p := range cfg.Profiles {
		p.Name = name
		cfg.Profiles[name] = p
	}
	return &cfg, nil
}

// Profile resolves a profile by name; the error names the alternatives so
// a typo is a one-step fix.
func (c *Config) Profile(name string) (Profile, error) {
	if p, ok := c.Profiles[name]; ok {
		return p, nil
	}
	names := make([]string, 0, len(c.Profiles))
	for n := range c.Profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return Profile{}, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(names, ", "))
}
