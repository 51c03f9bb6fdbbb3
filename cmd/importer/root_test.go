package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"migrate", "enrollments", "divisions", "courses"})
}

func TestImportCmd_RequiresFlags(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"divisions", "--actor", "admin", "--file", "x.xlsx"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "regulation")
}

func TestImportCmd_MissingFile(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"enrollments", "--actor", "admin", "--file", t.TempDir() + "/missing.xlsx"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.xlsx")
}

func TestMigrateCmd_DownAndStatusExclusive(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"migrate", "--down", "--status"})

	assert.Error(t, root.Execute())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, commandOutput{Command: "courses", DurationMS: 5, Result: []int{1}}))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "courses", got["command"])
	assert.Contains(t, buf.String(), "\n  \"duration_ms\": 5")
}
