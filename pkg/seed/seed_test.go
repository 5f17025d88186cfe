package seed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wpshift/wpshift/pkg/state"
)

func writeSeed(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const jsonSeed = `{
  "source_ip": "198.51.100.1",
  "source_user": "olduser",
  "source_port": "2222",
  "source_web_root": "/home/olduser/public_html",
  "future_field": "kept"
}`

const csvSeed = `source_ip,198.51.100.1
source_user,olduser
source_port,2222
source_web_root,/home/olduser/public_html
future_field,kept
`

func TestJSONAndCSVSeedsYieldIdenticalFacts(t *testing.T) {
	fromJSON, err := Load(writeSeed(t, "seed.json", jsonSeed))
	require.NoError(t, err)
	fromCSV, err := Load(writeSeed(t, "seed.csv", csvSeed))
	require.NoError(t, err)

	var a, b state.Facts
	fromJSON.Apply(&a)
	fromCSV.Apply(&b)
	assert.Equal(t, a, b)
	assert.Equal(t, "198.51.100.1", a.SourceIP)
	assert.Equal(t, "2222", a.SourcePort)
	assert.Equal(t, "kept", a.Extra["future_field"])
}

func TestLoadUnsupportedExtension(t *testing.T) {
	_, err := Load(writeSeed(t, "seed.yaml", "a: b"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".json or .csv")
}

func TestCSVRowShape(t *testing.T) {
	_, err := Load(writeSeed(t, "seed.csv", "source_ip,1.2.3.4,extra\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")
}

func TestValidateRequiresSourceFacts(t *testing.T) {
	s := Seed{"dest_ip": "198.51.100.2"}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source_ip")
	assert.Contains(t, err.Error(), "source_user")

	s["source_ip"] = "198.51.100.1"
	s["source_user"] = "olduser"
	assert.NoError(t, s.Validate())
}

func TestApplySkipsEmptyValues(t *testing.T) {
	f := state.Facts{SourceIP: "203.0.113.9"}
	Seed{"source_ip": ""}.Apply(&f)
	assert.Equal(t, "203.0.113.9", f.SourceIP)
}
