package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/config"
)

// securityModes describes the classifier posture options for the wizard.
var securityModes = []struct {
	ID   string
	Desc string
}{
	{"permissive", "commands that match no rule are allowed"},
	{"strict", "commands that match no rule are blocked"},
}

var riskLevels = []string{"low", "medium", "high", "critical"}

var knownInterfaces = []struct {
	ID   string
	Desc string
}{{"cli", "Check and run commands from the terminal"}, {"api", "HTTP API for assistant integration"}, {"mcp", "Model Context Protocol (stdio) for AI assistants"}}

func wizardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wizard",
		Short: "Interactive setup: security posture → sandbox → interface → save config",
		Long:  "Guides you through the classifier mode, the sandbox backend, and the interface (CLI/API/MCP). Writes config to the path used by --config or default.",
		RunE:  runWizard,
	}
}

func runWizard(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Defaults()
	}

	reader := bufio.NewReader(os.Stdin)
	prompt := func(def string) (string, error) {
		if def != "" {
			fmt.Fprintf(os.Stdout, " [%s]: ", def)
		} else {
			fmt.Fprint(os.Stdout, ": ")
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		s := strings.TrimSpace(line)
		if s == "" && def != "" {
			return def, nil
		}
		return s, nil
	}

	// Step 1: Security posture
	fmt.Println("\n--- Step 1: Security posture ---")
	for i, m := range securityModes {
		fmt.Fprintf(os.Stdout, "  %d) %s — %s\n", i+1, m.ID, m.Desc)
	}
	fmt.Fprint(os.Stdout, "Choose mode (1–"+fmt.Sprint(len(securityModes))+")")
	defNum := "1"
	for i, m := range securityModes {
		if m.ID == cfg.Security.Mode {
			defNum = fmt.Sprint(i + 1)
			break
		}
	}
	choice, err := prompt(defNum)
	if err != nil {
		return err
	}
	var idx int
	if n, _ := fmt.Sscanf(choice, "%d", &idx); n != 1 || idx < 1 || idx > len(securityModes) {
		idx = 1
	}
	cfg.Security.Mode = securityModes[idx-1].ID

	fmt.Fprintf(os.Stdout, "Risk level that requires confirmation (%s)", strings.Join(riskLevels, "/"))
	threshold, err := prompt(cfg.Security.ConfirmationThreshold)
	if err != nil {
		return err
	}
	for _, lvl := range riskLevels {
		if strings.EqualFold(threshold, lvl) {
			cfg.Security.ConfirmationThreshold = lvl
			break
		}
	}
	fmt.Fprintf(os.Stdout, "  Using mode: %s, confirmation from: %s\n", cfg.Security.Mode, cfg.Security.ConfirmationThreshold)

	// Step 2: Sandbox backend
	fmt.Println("\n--- Step 2: Sandbox ---")
	fmt.Fprintln(os.Stdout, "  1) docker — each command runs in its own resource-limited container")
	fmt.Fprintln(os.Stdout, "  2) host — commands run directly on this machine (no isolation)")
	fmt.Fprint(os.Stdout, "Choose backend (1–2)")
	sbDef := "1"
	if !cfg.Sandbox.Enabled {
		sbDef = "2"
	}
	sbChoice, err := prompt(sbDef)
	if err != nil {
		return err
	}
	var sbIdx int
	if n, _ := fmt.Sscanf(sbChoice, "%d", &sbIdx); n != 1 || sbIdx < 1 || sbIdx > 2 {
		sbIdx = 1
	}
	cfg.Sandbox.Enabled = sbIdx == 1
	if cfg.Sandbox.Enabled {
		fmt.Fprint(os.Stdout, "Container image")
		image, err := prompt(cfg.Sandbox.Image)
		if err != nil {
			return err
		}
		if image != "" {
			cfg.Sandbox.Image = image
		}
		fmt.Fprint(os.Stdout, "Fall back to the host for low-risk commands when Docker is down? (y/N)")
		fb, err := prompt("n")
		if err != nil {
			return err
		}
		cfg.Sandbox.AllowLocalFallback = strings.EqualFold(fb, "y") || strings.EqualFold(fb, "yes")
		fmt.Fprintf(os.Stdout, "  Using sandbox: docker (%s)\n", cfg.Sandbox.Image)
	} else {
		fmt.Fprintln(os.Stdout, "  Using sandbox: none, commands run on the host")
	}

	// Step 3: Interface
	fmt.Println("\n--- Step 3: Interface ---")
	for i, c := range knownInterfaces {
		fmt.Fprintf(os.Stdout, "  %d) %s — %s\n", i+1, c.ID, c.Desc)
	}
	fmt.Fprint(os.Stdout, "Choose interface (1–3)")
	ifChoice, err := prompt("1")
	if err != nil {
		return err
	}
	var ifIdx int
	if n, _ := fmt.Sscanf(ifChoice, "%d", &ifIdx); n != 1 || ifIdx < 1 || ifIdx > len(knownInterfaces) {
		ifIdx = 1
	}
	ifID := knownInterfaces[ifIdx-1].ID
	cfg.Server.Enabled = ifID == "api"
	cfg.MCP.Enabled = ifID == "mcp"
	if ifID == "api" {
		fmt.Fprint(os.Stdout, "API port")
		portStr, err := prompt(fmt.Sprint(cfg.Server.Port))
		if err != nil {
			return err
		}
		var port int
		if n, _ := fmt.Sscanf(portStr, "%d", &port); n == 1 && port > 0 && port < 65536 {
			cfg.Server.Port = port
		}
		fmt.Fprint(os.Stdout, "API key: paste a key or an env var reference (e.g. ${PSGUARD_API_KEY})")
		key, err := prompt("${PSGUARD_API_KEY}")
		if err != nil {
			return err
		}
		if key != "" {
			cfg.Server.APIKey = key
		}
	}
	fmt.Fprintf(os.Stdout, "  Using interface: %s\n", ifID)

	// Save
	cfgDir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\nConfig saved to %s\n", cfgPath)
	fmt.Println("Next: run 'psguard check \"<command>\"' to classify, or 'psguard serve' for the API.")
	return nil
}
