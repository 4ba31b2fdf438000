package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/harunnryd/sekisho/internal/pathutil"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Store    StoreConfig    `koanf:"store"`
	History  HistoryConfig  `koanf:"history"`
	Approval ApprovalConfig `koanf:"approval"`
	Gateway  GatewayConfig  `koanf:"gateway"`
}

type ServerConfig struct {
	LogLevel string `koanf:"log_level"`
}

type StoreConfig struct {
	WorkspacePath string `koanf:"workspace_path"`
	LockTimeout   string `koanf:"lock_timeout"`
	LockRetry     string `koanf:"lock_retry"`
	LockMaxRetry  int    `koanf:"lock_max_retry"`
	StaleLockTTL  string `koanf:"stale_lock_ttl"`
}

type HistoryConfig struct {
	Journal               bool  `koanf:"journal"`
	JournalRotateMaxBytes int64 `koanf:"journal_rotate_max_bytes"`
}

type ApprovalConfig struct {
	RulesPath             string   `koanf:"rules_path"`
	WatchRules            bool     `koanf:"watch_rules"`
	DefaultSensitiveFiles []string `koanf:"default_sensitive_files"`
	FailClosed            bool     `koanf:"fail_closed"`
}

type GatewayConfig struct {
	ConfirmationTimeout string `koanf:"confirmation_timeout"`
	ReaperSchedule      string `koanf:"reaper_schedule"`
	DedupeTTL           string `koanf:"dedupe_ttl"`
}

const (
	DefaultWorkspaceID              = "default"
	DefaultServerLogLevel           = "info"
	DefaultStoreLockTimeout         = "30s"
	DefaultStoreLockRetry           = "100ms"
	DefaultStoreLockMaxRetry        = 300
	DefaultStoreStaleLockTTL        = "15m"
	DefaultHistoryJournal           = true
	DefaultHistoryJournalRotate     = 10 * 1024 * 1024
	DefaultApprovalWatchRules       = true
	DefaultApprovalFailClosed       = true
	DefaultGatewayConfirmTimeout    = "0"
	DefaultGatewayReaperSchedule    = "@every 30s"
	DefaultGatewayDedupeTTL         = "24h"
)

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	// Hardcoded Defaults
	defaults := map[string]interface{}{
		"server.log_level":                  DefaultServerLogLevel,
		"store.workspace_path":              "",
		"store.lock_timeout":                DefaultStoreLockTimeout,
		"store.lock_retry":                  DefaultStoreLockRetry,
		"store.lock_max_retry":              DefaultStoreLockMaxRetry,
		"store.stale_lock_ttl":              DefaultStoreStaleLockTTL,
		"history.journal":                   DefaultHistoryJournal,
		"history.journal_rotate_max_bytes":  DefaultHistoryJournalRotate,
		"approval.rules_path":               "",
		"approval.watch_rules":              DefaultApprovalWatchRules,
		"approval.default_sensitive_files":  []string{".env", ".ssh/config", "id_rsa", "credentials.json"},
		"approval.fail_closed":              DefaultApprovalFailClosed,
		"gateway.confirmation_timeout":      DefaultGatewayConfirmTimeout,
		"gateway.reaper_schedule":           DefaultGatewayReaperSchedule,
		"gateway.dedupe_ttl":                DefaultGatewayDedupeTTL,
	}

	for key, value := range defaults {
		_ = k.Set(key, value)
	}

	// Config File
	configPath := resolveConfigPath(cmd)
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				slog.Warn("Failed to load config file", "path", configPath, "error", err)
			}
		}
	}

	// Environment (SEKISHO_SERVER_LOG_LEVEL -> server.log_level)
	if err := k.Load(env.Provider("SEKISHO_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "SEKISHO_")), "_", ".", 1)
	}), nil); err != nil {
		return nil, err
	}

	// Flags override everything
	if cmd != nil {
		if err := k.Load(posflag.Provider(cmd.Flags(), ".", k), nil); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func resolveConfigPath(cmd *cobra.Command) string {
	if cmd != nil {
		if path, err := cmd.Flags().GetString("config"); err == nil && path != "" {
			expanded, err := pathutil.Expand(path)
			if err == nil {
				return expanded
			}
			return path
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.sekisho/config.yaml"
}
