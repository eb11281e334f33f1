package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAll(t *testing.T) {
	all, err := All()
	require.NoError(t, err)
	require.NotEmpty(t, all)

	assert.Equal(t, "001_create_issues.sql", all[0].Name)
	assert.Contains(t, all[0].SQL, "CREATE TABLE IF NOT EXISTS issues")
	assert.Contains(t, all[0].SQL, "issue_escalation_history")

	require.Len(t, all, 2)
	assert.Equal(t, "002_candidate_keyset_index.sql", all[1].Name)
	assert.Contains(t, all[1].SQL, "ON issues (created_at, id)")

	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Name, all[i].Name, "migrations must run in name order")
	}
}
