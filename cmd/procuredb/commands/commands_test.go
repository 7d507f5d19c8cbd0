package commands

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marshallshelly/procuredb/cmd/procuredb/output"
	"github.com/marshallshelly/procuredb/internal/models"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := output.Out
	output.Out = &buf
	t.Cleanup(func() { output.Out = prev })
	return &buf
}

func TestSchemaCommand(t *testing.T) {
	buf := captureOutput(t)
	showDown = false
	require.NoError(t, schemaCmd.RunE(schemaCmd, nil))

	sql := buf.String()
	assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS users (")
	assert.Contains(t, sql, "ENABLE ROW LEVEL SECURITY")
	assert.Contains(t, sql, "app_is_admin()")

	buf.Reset()
	showDown = true
	t.Cleanup(func() { showDown = false })
	require.NoError(t, schemaCmd.RunE(schemaCmd, nil))
	assert.Contains(t, buf.String(), "DROP TABLE")
}

func TestPolicyList(t *testing.T) {
	set, err := models.Policies()
	require.NoError(t, err)

	buf := captureOutput(t)
	jsonOutput = true
	t.Cleanup(func() { jsonOutput = false })
	require.NoError(t, printPolicies(set))

	var rules []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rules))
	tables := map[string]bool{}
	for _, r := range rules {
		tables[r["table"].(string)] = true
	}
	assert.Len(t, tables, 10)
	assert.True(t, tables["social_trends"])
}

func TestPolicyCheck(t *testing.T) {
	set, err := models.Policies()
	require.NoError(t, err)
	alice, bob := uuid.NewString(), uuid.NewString()

	check := func(table, op, user, owner string, admin bool, changed ...string) map[string]any {
		t.Helper()
		buf := captureOutput(t)
		jsonOutput = true
		t.Cleanup(func() { jsonOutput = false })
		checkTable, checkOp, checkUser, checkOwner = table, op, user, owner
		checkAdmin, checkSystem, checkChanged = admin, false, changed
		require.NoError(t, runPolicyCheck(set))
		var out map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
		return out
	}

	assert.Equal(t, true, check("orders", "select", alice, alice, false)["allowed"])
	assert.Equal(t, false, check("orders", "select", bob, alice, false)["allowed"])
	assert.Equal(t, true, check("orders", "delete", bob, alice, true)["allowed"])
	assert.Equal(t, false, check("users", "update", alice, alice, false, "is_admin")["allowed"])
	assert.Equal(t, false, check("social_trends", "select", alice, "", false)["allowed"])
	assert.Equal(t, true, check("user_activity", "insert", "", alice, false)["allowed"])

	checkOp = "truncate"
	assert.Error(t, runPolicyCheck(set))
	checkOp, checkUser = "select", "not-a-uuid"
	assert.Error(t, runPolicyCheck(set))
}
