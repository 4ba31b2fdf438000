package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/harunnryd/sekisho/internal/approval"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage auto-approval rules",
	Long:  `Manage the persisted global auto-approval rules for terminal commands, sensitive files and MCP servers.`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the global rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := openRules(cmd)
		if err != nil {
			return err
		}

		commands := rules.GlobalTerminalCommands()
		keys := make([]string, 0, len(commands))
		for key := range commands {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		rows := make([][]string, 0, len(keys))
		for _, key := range keys {
			rows = append(rows, []string{truncateString(key, 40), yesNo(commands[key])})
		}
		fmt.Println("Terminal commands")
		fmt.Println(renderTable([]string{"Command", "Auto-Approve"}, rows))

		files := rules.GlobalSensitiveFiles()
		keys = keys[:0]
		for key := range files {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		rows = rows[:0]
		for _, key := range keys {
			rows = append(rows, []string{
				truncateString(key, 40),
				truncateString(files[key].Description, 30),
				yesNo(files[key].AutoApprove),
			})
		}
		fmt.Println("Sensitive files")
		fmt.Println(renderTable([]string{"File", "Description", "Auto-Approve"}, rows))

		servers := rules.GlobalMCPServers()
		keys = keys[:0]
		for key := range servers {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		rows = rows[:0]
		for _, key := range keys {
			s := servers[key]
			rows = append(rows, []string{
				truncateString(key, 30),
				yesNo(s.IsServerAllowed),
				truncateString(strings.Join(s.AllowedTools, ", "), 40),
			})
		}
		fmt.Println("MCP servers")
		fmt.Println(renderTable([]string{"Server", "All Tools", "Allowed Tools"}, rows))

		return nil
	},
}

var rulesAllowCmd = &cobra.Command{
	Use:   "allow <terminal|file|mcp> <key> [tool]",
	Short: "Add a global auto-approval rule",
	Long:  `Add a global auto-approval rule. For terminal rules the key is a command name or an exact command line; for file rules the sensitive-file key; for mcp rules the server name, optionally narrowed to one tool.`,
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := openRules(cmd)
		if err != nil {
			return err
		}
		return setRule(rules, args, true)
	},
}

var rulesRevokeCmd = &cobra.Command{
	Use:   "revoke <terminal|file|mcp> <key>",
	Short: "Pin a rule to always prompt",
	Long:  `Mark a key as never auto-approved. The explicit deny shadows any broader grant, so the call always prompts.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := openRules(cmd)
		if err != nil {
			return err
		}
		return setRule(rules, args, false)
	},
}

func setRule(rules *approval.RuleStore, args []string, allow bool) error {
	scope := approval.GlobalScope()
	kind, key := args[0], args[1]

	switch kind {
	case "terminal":
		if err := rules.SetCommandRule(scope, key, allow); err != nil {
			return err
		}
	case "file":
		rule := approval.SensitiveFileRule{Description: key, AutoApprove: allow}
		if err := rules.SetSensitiveFileRule(scope, key, rule); err != nil {
			return err
		}
	case "mcp":
		if len(args) == 3 {
			if !allow {
				return fmt.Errorf("revoke works per server; revoke %q instead", key)
			}
			if err := rules.SetMCPToolAllowed(scope, key, args[2]); err != nil {
				return err
			}
		} else if err := rules.SetMCPServerAllowed(scope, key, allow); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown rule kind %q (want terminal, file or mcp)", kind)
	}

	fmt.Printf("Rule saved: %s %s\n", kind, key)
	return nil
}

type rulesExport struct {
	TerminalCommands map[string]bool                       `yaml:"terminal_commands"`
	SensitiveFiles   map[string]approval.SensitiveFileRule `yaml:"sensitive_files"`
	MCPServers       map[string]approval.MCPServerApproval `yaml:"mcp_servers"`
}

var rulesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the global rules as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := openRules(cmd)
		if err != nil {
			return err
		}

		out := rulesExport{
			TerminalCommands: rules.GlobalTerminalCommands(),
			SensitiveFiles:   rules.GlobalSensitiveFiles(),
			MCPServers:       rules.GlobalMCPServers(),
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(out)
	},
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesAllowCmd)
	rulesCmd.AddCommand(rulesRevokeCmd)
	rulesCmd.AddCommand(rulesExportCmd)
}
