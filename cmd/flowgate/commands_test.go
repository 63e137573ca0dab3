package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reviewGraph = `{
	"id": "refunds",
	"nodes": [
		{"id": "review", "type": "approval", "data": {"message": "Refund {{ .vars.input.amount }}?", "approval_id": "refund-review"}},
		{"id": "note", "type": "transform", "data": {"assignments": {"reviewer": "{{ .vars.approval.decided_by }}"}}}
	],
	"edges": [
		{"source": "review", "target": "note"}
	]
}`

type cliHarness struct {
	t       *testing.T
	dataDir string
}

func newHarness(t *testing.T) *cliHarness {
	t.Helper()

	return &cliHarness{t: t, dataDir: t.TempDir()}
}

func (h *cliHarness) run(args ...string) (map[string]any, error) {
	h.t.Helper()

	var out bytes.Buffer

	app := newApp()
	app.Writer = &out

	base := []string{
		"flowgate",
		"--database-url", "file://" + h.dataDir,
		"--plugins-path", filepath.Join(h.dataDir, "plugins"),
		"--log-level", "error",
	}

	err := app.Run(context.Background(), append(base, args...))

	var body map[string]any
	if out.Len() > 0 {
		require.NoError(h.t, json.Unmarshal(out.Bytes(), &body), out.String())
	}

	return body, err
}

func TestCLI_ApprovalFlow(t *testing.T) {
	h := newHarness(t)

	graphPath := filepath.Join(t.TempDir(), "refunds.json")
	require.NoError(t, os.WriteFile(graphPath, []byte(reviewGraph), 0o600))

	body, err := h.run("graphs", "import", graphPath)
	require.NoError(t, err)
	assert.Equal(t, "refunds", body["id"])

	body, err = h.run("runs", "start", "--input", `{"amount":7}`, "--advance", "refunds")
	require.NoError(t, err)
	assert.Equal(t, "waiting-approval", body["status"])
	assert.Equal(t, "refund-review", body["approval_id"])

	executionID, _ := body["execution_id"].(string)
	require.NotEmpty(t, executionID)

	body, err = h.run("approvals", "show", "refund-review")
	require.NoError(t, err)
	assert.Equal(t, "Refund 7?", body["message"])
	assert.Equal(t, "pending", body["status"])

	body, err = h.run("approvals", "approve", "--by", "carol", "refund-review")
	require.NoError(t, err)
	assert.Equal(t, "running", body["run_status"])

	body, err = h.run("runs", "advance", executionID)
	require.NoError(t, err)
	assert.Equal(t, "completed", body["status"])

	body, err = h.run("runs", "status", executionID)
	require.NoError(t, err)

	state, _ := body["state"].(map[string]any)
	variables, _ := state["variables"].(map[string]any)
	assert.Equal(t, "carol", variables["reviewer"])
}

func TestCLI_RejectFailsRun(t *testing.T) {
	h := newHarness(t)

	graphPath := filepath.Join(t.TempDir(), "refunds.json")
	require.NoError(t, os.WriteFile(graphPath, []byte(reviewGraph), 0o600))

	_, err := h.run("graphs", "import", graphPath)
	require.NoError(t, err)

	body, err := h.run("runs", "start", "--input", `{"amount":3}`, "--advance", "refunds")
	require.NoError(t, err)

	executionID, _ := body["execution_id"].(string)

	body, err = h.run("approvals", "reject", "--comment", "no", "refund-review")
	require.NoError(t, err)
	assert.Equal(t, "failed", body["run_status"])

	body, err = h.run("runs", "status", executionID)
	require.NoError(t, err)
	assert.Equal(t, "failed", body["status"])
	assert.Contains(t, body["error"], "rejected")
}

func TestCLI_Errors(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("runs", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing execution-id")

	_, err = h.run("runs", "start", "missing")
	require.Error(t, err)

	_, err = h.run("runs", "start", "--input", "{", "refunds")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --input")

	_, err = h.run("graphs", "import", filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}
