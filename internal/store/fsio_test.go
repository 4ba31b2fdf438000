package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fsioPayload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteThenReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.json")

	require.NoError(t, WriteJSON(path, fsioPayload{Name: "gate", Count: 3}))

	var got fsioPayload
	require.NoError(t, ReadJSON(path, &got))
	assert.Equal(t, fsioPayload{Name: "gate", Count: 3}, got)
}

func TestReadJSONMissingFileLeavesOutUntouched(t *testing.T) {
	got := fsioPayload{Name: "keep"}
	require.NoError(t, ReadJSON(filepath.Join(t.TempDir(), "absent.json"), &got))
	assert.Equal(t, "keep", got.Name)
}

func TestReadJSONEmptyFileLeavesOutUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	got := fsioPayload{Name: "keep"}
	require.NoError(t, ReadJSON(path, &got))
	assert.Equal(t, "keep", got.Name)
}

func TestReadJSONCorruptFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o644))

	var got fsioPayload
	assert.Error(t, ReadJSON(path, &got))
}

func TestEnsureWorkspaceDirs(t *testing.T) {
	root := t.TempDir()

	base, err := EnsureWorkspaceDirs("ws-1", root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "ws-1"), base)

	for _, dir := range []string{"approvals", "journal", "gateway", filepath.Join("gateway", "decisions")} {
		info, err := os.Stat(filepath.Join(base, dir))
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir(), dir)
	}
}

func TestGetGatewayDir(t *testing.T) {
	dir, err := GetGatewayDir("ws-1", "/tmp/sekisho-root")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/sekisho-root", "ws-1", "gateway"), dir)
}
