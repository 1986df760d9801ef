package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passport-tracker/pkg/registry"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAddUpdateValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity-registry.json")

	out, err := execute(t, "", "add", "--path", path,
		"--id", "verify-stage", "--display-name", "Verify Stage",
		"--category", "application", "--task-type", "verify-stage", "--retries", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Added activity: verify-stage")

	_, err = execute(t, "", "update", "--path", path, "--id", "verify-stage", "--field", "status", "--value", "completed")
	require.NoError(t, err)

	reg, err := registry.LoadRegistry(path)
	require.NoError(t, err)
	a, ok := reg.Find("verify-stage")
	require.True(t, ok)
	assert.Equal(t, registry.StatusCompleted, a.ImplementationStatus)
	assert.Equal(t, 2, a.Retries)

	out, err = execute(t, "", "validate", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Found 1 activities")

	out, err = execute(t, "", "list", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "verify-stage")
}

func TestUpdate_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity-registry.json")
	_, err := execute(t, "", "add", "--path", path,
		"--id", "send-notification", "--display-name", "Send Notification",
		"--category", "application", "--task-type", "send-notification")
	require.NoError(t, err)

	_, err = execute(t, "", "update", "--path", path, "--id", "send-notification", "--field", "owner", "--value", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")
}

func TestCheckVars(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity-registry.json")
	reg := registry.New()
	require.NoError(t, reg.Add(registry.Activity{
		ID:          "search-applications",
		DisplayName: "Search Applications",
		Category:    "data-access",
		TaskType:    "search-applications",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"size": map[string]interface{}{"type": "integer", "minimum": 1},
			},
		},
	}))
	require.NoError(t, reg.Save(path))

	out, err := execute(t, `{"size": 10}`, "check-vars", "search-applications", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Variables valid")

	_, err = execute(t, `{"size": 0}`, "check-vars", "search-applications", "--path", path)
	require.Error(t, err)

	_, err = execute(t, `{}`, "check-vars", "unknown-task", "--path", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestScaffold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "activity-registry.json")
	reg := registry.New()
	require.NoError(t, reg.Add(registry.Activity{
		ID:          "archive-application",
		DisplayName: "Archive Application",
		Description: "moves a delivered application to cold storage.",
		Category:    "application",
		TaskType:    "archive-application",
		InputSchema: map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"applicationNumber"},
			"properties": map[string]interface{}{
				"applicationNumber": map[string]interface{}{"type": "string"},
				"dryRun":            map[string]interface{}{"type": "boolean"},
			},
		},
		OutputSchema: map[string]interface{}{
			"properties": map[string]interface{}{
				"archived": map[string]interface{}{"type": "integer"},
			},
		},
	}))
	require.NoError(t, reg.Save(path))

	out := filepath.Join(dir, "workers")
	stdout, err := execute(t, "", "scaffold", "archive-application", "--path", path, "--output", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "handler.go")

	models, err := os.ReadFile(filepath.Join(out, "application", "archive-application", "models.go"))
	require.NoError(t, err)
	assert.Contains(t, string(models), "package archiveapplication")
	assert.Contains(t, string(models), "`json:\"applicationNumber\"`")
	assert.Contains(t, string(models), "`json:\"dryRun,omitempty\"`")
	assert.Contains(t, string(models), "Archived int")

	handler, err := os.ReadFile(filepath.Join(out, "application", "archive-application", "handler.go"))
	require.NoError(t, err)
	assert.Contains(t, string(handler), `TaskType = "archive-application"`)

	_, err = execute(t, "", "scaffold", "archive-application", "--path", path, "--output", out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}
