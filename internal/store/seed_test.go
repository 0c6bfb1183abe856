package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadKPILibrary(t *testing.T) {
	defs, err := LoadKPILibrary()
	require.NoError(t, err)
	require.Len(t, defs, 10)

	seen := make(map[string]bool)
	for _, d := range defs {
		k := d.DeptName + "/" + d.KPIKey
		assert.False(t, seen[k], "duplicate %s", k)
		seen[k] = true
		assert.NotEmpty(t, d.KPIName, k)
		assert.NotEmpty(t, d.Section, k)
	}

	first := defs[0]
	assert.Equal(t, "Service Desk", first.DeptName)
	assert.Equal(t, "sla_compliance", first.KPIKey)
	assert.Equal(t, "SLA Compliance", first.KPIName)
	assert.Equal(t, "Service Levels", first.Section)
	assert.Equal(t, "< 95%", first.RedRule)
	assert.Equal(t, "Service Desk Leads", first.OwnerTeam)
}

func TestParseKPILibrary_MissingKey(t *testing.T) {
	_, err := parseKPILibrary([]byte(`
departments:
  - name: Ops
    kpis:
      - name: Uptime
        section: Availability
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing a department or key")
}

func TestParseKPILibrary_BadYAML(t *testing.T) {
	_, err := parseKPILibrary([]byte("departments: [unterminated"))
	require.Error(t, err)
}
