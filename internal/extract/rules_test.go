package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/datares-tracker/constants"
)

func writeRules(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadRulesEmptyPath(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRules(), rules)
}

func TestLoadRulesOverrides(t *testing.T) {
	path := writeRules(t, `
items:
  - item: inventory
    anchors: ["存货", "存 货"]
  - item: 无形资产
window: 5
duplicate_policy: sum
`)
	rules, err := LoadRules(path)
	require.NoError(t, err)

	require.Len(t, rules.Items, 2)
	assert.Equal(t, constants.Inventory, rules.Items[0].Item)
	assert.Equal(t, []string{"存货", "存 货"}, rules.Items[0].Anchors)
	assert.Equal(t, []string{"无形资产"}, rules.Items[1].Anchors)
	assert.Equal(t, 5, rules.Window)
	assert.Equal(t, DuplicateSum, rules.DuplicatePolicy)
	assert.Equal(t, []string{constants.DataResourceAnchor}, rules.NestedAnchors)
	assert.True(t, rules.StrictBoundary)
}

func TestLoadRulesInvalid(t *testing.T) {
	tests := map[string]string{
		"unknown item": "items:\n  - item: goodwill\n",
		"zero window":  "window: 0\n",
		"bad policy":   "duplicate_policy: last\n",
		"bad yaml":     "items: [\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadRules(writeRules(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadRulesMissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
