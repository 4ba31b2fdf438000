package store

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/sekisho/internal/pathutil"
)

// ResolveWorkspaceRootPath resolves the configured workspace root path.
// If empty, it falls back to ~/.sekisho/workspaces.
func ResolveWorkspaceRootPath(workspaceRootPath string) (string, error) {
	if trimmed := strings.TrimSpace(workspaceRootPath); trimmed != "" {
		return pathutil.Expand(trimmed)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".sekisho", "workspaces"), nil
}

// GetWorkspacePath returns the base path for a workspace.
func GetWorkspacePath(workspaceID string, workspaceRootPath string) (string, error) {
	root, err := ResolveWorkspaceRootPath(workspaceRootPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, workspaceID), nil
}

// GetApprovalsDir returns the persisted approval-rules directory for a workspace.
func GetApprovalsDir(workspaceID string, workspaceRootPath string) (string, error) {
	base, err := GetWorkspacePath(workspaceID, workspaceRootPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "approvals"), nil
}

// GetJournalDir returns the conversation journal directory for a workspace.
func GetJournalDir(workspaceID string, workspaceRootPath string) (string, error) {
	base, err := GetWorkspacePath(workspaceID, workspaceRootPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "journal"), nil
}

// GetGatewayDir returns the gateway state directory for a workspace. It
// holds the request dedupe store, the pending-calls snapshot and the
// decision spool.
func GetGatewayDir(workspaceID string, workspaceRootPath string) (string, error) {
	base, err := GetWorkspacePath(workspaceID, workspaceRootPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "gateway"), nil
}

// GetLockPath returns the lock file path for a workspace.
func GetLockPath(workspaceID string, workspaceRootPath string) (string, error) {
	base, err := GetWorkspacePath(workspaceID, workspaceRootPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, lockFileName), nil
}

// EnsureWorkspaceDirs creates the workspace directory tree.
func EnsureWorkspaceDirs(workspaceID string, workspaceRootPath string) (string, error) {
	base, err := GetWorkspacePath(workspaceID, workspaceRootPath)
	if err != nil {
		return "", err
	}
	for _, dir := range []string{
		filepath.Join(base, "approvals"),
		filepath.Join(base, "journal"),
		filepath.Join(base, "gateway"),
		filepath.Join(base, "gateway", "decisions"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", err
		}
	}
	return base, nil
}
