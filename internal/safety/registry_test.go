package safety

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRegistryWithEmptyPathReturnsHardcodedOnly(t *testing.T) {
	rules, related, err := LoadRegistry("")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "hc-fan-domain", rules[0].ID())
	assert.Empty(t, related)
}

func TestLoadRegistryDegradesOnMissingFile(t *testing.T) {
	rules, related, err := LoadRegistry(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "hc-fan-domain", rules[0].ID())
	assert.Empty(t, related)
}

func TestLoadRegistryDegradesOnMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o644))

	rules, related, err := LoadRegistry(path)
	assert.Error(t, err)
	require.Len(t, rules, 1)
	assert.Empty(t, related)
}

func TestLoadRegistryBuildsInterlocksFromDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	doc := `
interlocks:
  - id: fire-pump-1
    priority: 50
    pumpComponentPattern: "^pump-.*$"
    fireComponentPattern: "^fire-.*$"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	rules, related, err := LoadRegistry(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	var ids []string
	for _, r := range rules {
		ids = append(ids, r.ID())
	}
	assert.Contains(t, ids, "hc-fan-domain")
	assert.Contains(t, ids, "fire-pump-1")

	require.Len(t, related, 1)
	assert.True(t, related[0].MatchString("fire-alarm-1"))
	assert.False(t, related[0].MatchString("pump-1"))
}
