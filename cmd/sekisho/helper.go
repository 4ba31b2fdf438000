package main

import (
	"fmt"
	"path/filepath"

	"github.com/harunnryd/sekisho/internal/approval"
	"github.com/harunnryd/sekisho/internal/config"
	"github.com/harunnryd/sekisho/internal/pathutil"
	"github.com/harunnryd/sekisho/internal/store"

	"github.com/spf13/cobra"
)

func workspaceID(cmd *cobra.Command) string {
	if id, err := cmd.Flags().GetString("workspace"); err == nil && id != "" {
		return id
	}
	return "default"
}

// openWorkspace ensures the workspace directory tree exists and returns
// its base path.
func openWorkspace(cmd *cobra.Command) (string, error) {
	base, err := store.EnsureWorkspaceDirs(workspaceID(cmd), cfg.Store.WorkspacePath)
	if err != nil {
		return "", fmt.Errorf("failed to prepare workspace: %w", err)
	}
	return base, nil
}

// rulesDir resolves the approval-rules directory: an explicit
// approval.rules_path wins, otherwise the workspace approvals dir.
func rulesDir(cmd *cobra.Command) (string, error) {
	if cfg.Approval.RulesPath != "" {
		return pathutil.Expand(cfg.Approval.RulesPath)
	}
	if _, err := openWorkspace(cmd); err != nil {
		return "", err
	}
	return store.GetApprovalsDir(workspaceID(cmd), cfg.Store.WorkspacePath)
}

// openRules opens the rule store and seeds the configured default
// sensitive-file rules, all prompting, none auto-approved.
func openRules(cmd *cobra.Command) (*approval.RuleStore, error) {
	dir, err := rulesDir(cmd)
	if err != nil {
		return nil, err
	}
	rules := approval.NewRuleStore(dir)

	for _, key := range cfg.Approval.DefaultSensitiveFiles {
		if _, ok := rules.SensitiveFileRule(approval.GlobalScope(), key); ok {
			continue
		}
		rule := approval.SensitiveFileRule{Description: key, AutoApprove: false}
		if err := rules.SetSensitiveFileRule(approval.GlobalScope(), key, rule); err != nil {
			return nil, fmt.Errorf("failed to seed sensitive-file rule %q: %w", key, err)
		}
	}
	return rules, nil
}

func fileLockConfig() (*store.FileLockConfig, error) {
	timeout, err := config.DurationOrDefault(cfg.Store.LockTimeout, config.DefaultStoreLockTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid store.lock_timeout: %w", err)
	}
	retry, err := config.DurationOrDefault(cfg.Store.LockRetry, config.DefaultStoreLockRetry)
	if err != nil {
		return nil, fmt.Errorf("invalid store.lock_retry: %w", err)
	}
	return &store.FileLockConfig{
		LockTimeout:  timeout,
		LockRetry:    retry,
		LockMaxRetry: cfg.Store.LockMaxRetry,
	}, nil
}

func gatewayDir(cmd *cobra.Command) (string, error) {
	if _, err := openWorkspace(cmd); err != nil {
		return "", err
	}
	return store.GetGatewayDir(workspaceID(cmd), cfg.Store.WorkspacePath)
}

func pendingSnapshotPath(gatewayDir string) string {
	return filepath.Join(gatewayDir, "pending.json")
}

func decisionSpoolDir(gatewayDir string) string {
	return filepath.Join(gatewayDir, "decisions")
}
