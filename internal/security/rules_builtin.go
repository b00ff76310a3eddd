package security

import "github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"

// BuiltinRules returns the default rule catalog: PowerShell first, with the
// POSIX equivalents alongside so cross-platform suggestions are covered by
// the same entries. Named rules carry explicit priorities; category rules
// cover the broader pattern families.
func BuiltinRules() []domain.SecurityRule {
	return []domain.SecurityRule{
		{
			Name:     "recursive-force-delete",
			Priority: 10,
			Kind:     domain.PatternAny,
			Patterns: []string{
				`(?i)remove-item\s+[^|;]*-recurse[^|;]*-force`,
				`(?i)remove-item\s+[^|;]*-force[^|;]*-recurse`,
				`(?i)\brm\s+-[a-z]*r[a-z]*f`,
				`(?i)\brm\s+-[a-z]*f[a-z]*r`,
				`(?i)\bdel\s+[^|;]*/s\b[^|;]*/q\b`,
				`(?i)\brd\s+/s\b`,
			},
			Category:    "destructive-delete",
			Action:      domain.ActionBlock,
			RiskLevel:   domain.RiskCritical,
			Description: "Recursive forced deletion can destroy data irrecoverably",
		},
		{
			Name:     "disk-format",
			Priority: 20,
			Kind:     domain.PatternAny,
			Patterns: []string{
				`(?i)\bformat-volume\b`,
				`(?i)\bclear-disk\b`,
				`(?i)\bformat\s+[a-z]:`,
				`(?i)\bmkfs(\.\w+)?\b`,
				`(?i)\bdd\s+[^|;]*of=/dev/`,
			},
			Category:    "disk-format",
			Action:      domain.ActionBlock,
			RiskLevel:   domain.RiskCritical,
			Description: "Disk formatting erases entire volumes",
		},
		{
			Name:     "partition-change",
			Priority: 30,
			Kind:     domain.PatternAny,
			Patterns: []string{
				`(?i)\bremove-partition\b`,
				`(?i)\binitialize-disk\b`,
				`(?i)\bdiskpart\b`,
				`(?i)\bfdisk\b`,
				`(?i)\bparted\b`,
			},
			Category:    "partition-change",
			Action:      domain.ActionBlock,
			RiskLevel:   domain.RiskCritical,
			Description: "Partition manipulation can make the system unbootable",
		},
		{
			Name:        "fork-bomb",
			Priority:    40,
			Kind:        domain.PatternRegex,
			Pattern:     `:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`,
			Category:    "resource-exhaustion",
			Action:      domain.ActionBlock,
			RiskLevel:   domain.RiskCritical,
			Description: "Fork bomb exhausts system resources",
		},
		{
			Name:     "remote-code-execution",
			Priority: 50,
			Kind:     domain.PatternAny,
			Patterns: []string{
				`(?i)\b(iex|invoke-expression)\b[^|;]*\b(invoke-webrequest|invoke-restmethod|downloadstring|net\.webclient)\b`,
				`(?i)\b(invoke-webrequest|invoke-restmethod|curl|wget)\b[^|]*\|\s*\w*\s*(iex|invoke-expression|(ba)?sh)\b`,
				`(?i)downloadstring\s*\(`,
			},
			Category:    "remote-code-execution",
			Action:      domain.ActionBlock,
			RiskLevel:   domain.RiskCritical,
			Description: "Downloading and executing remote code bypasses every local safeguard",
		},
		{
			Name:     "system-shutdown",
			Priority: 60,
			Kind:     domain.PatternAny,
			Patterns: []string{
				`(?i)\bstop-computer\b`,
				`(?i)\brestart-computer\b`,
				`(?i)\bshutdown\b`,
				`(?i)\breboot\b`,
				`(?i)\bpoweroff\b`,
				`(?i)(^|[;|&]\s*)halt\b`,
			},
			Category:    "system-shutdown",
			Action:      domain.ActionConfirm,
			RiskLevel:   domain.RiskHigh,
			Description: "Shuts down or restarts the machine",
		},
		{
			Name:        "execution-policy-change",
			Priority:    70,
			Kind:        domain.PatternRegex,
			Pattern:     `(?i)set-executionpolicy\s+(-\w+\s+)*(unrestricted|bypass)`,
			Category:    "execution-policy",
			Action:      domain.ActionConfirm,
			RiskLevel:   domain.RiskHigh,
			Description: "Removes script execution restrictions system-wide",
		},
		{
			Name:     "hostile-filesystem",
			Priority: 80,
			Kind:     domain.PatternAny,
			Patterns: []string{
				`(?i)chmod\s+-r\s+777\s+/\s*$`,
				`(?i)mv\s+/\S*\s+/dev/null`,
				`>\s*/dev/sd[a-z]`,
			},
			Category:    "hostile-filesystem",
			Action:      domain.ActionBlock,
			RiskLevel:   domain.RiskCritical,
			Description: "Destroys filesystem permissions or device contents",
		},
		{
			Kind: domain.PatternAny,
			Patterns: []string{
				`(?i)\b(remove-item|remove-itemproperty|set-itemproperty|new-itemproperty)\b[^|;]*\b(hklm|hkcu|hkey_local_machine|hkey_current_user)`,
				`(?i)\breg\s+(delete|add)\b`,
			},
			Category:    "registry-modify",
			Action:      domain.ActionConfirm,
			RiskLevel:   domain.RiskHigh,
			Description: "Modifies the Windows registry",
		},
		{
			Kind: domain.PatternAny,
			Patterns: []string{
				`(?i)\b(stop-service|restart-service)\b`,
				`(?i)\bsc\s+(stop|delete)\b`,
				`(?i)\bsystemctl\s+(stop|disable|mask)\b`,
				`(?i)\bnet\s+stop\b`,
			},
			Category:    "service-control",
			Action:      domain.ActionConfirm,
			RiskLevel:   domain.RiskMedium,
			Description: "Stops or disables a system service",
		},
		{
			Kind: domain.PatternAny,
			Patterns: []string{
				`(?i)\bstop-process\b[^|;]*-force`,
				`(?i)\btaskkill\b[^|;]*/f`,
				`(?i)\bkill\s+-9\b`,
				`(?i)\bkillall\b`,
			},
			Category:    "process-kill",
			Action:      domain.ActionConfirm,
			RiskLevel:   domain.RiskMedium,
			Description: "Forcibly terminates processes",
		},
		{
			Kind: domain.PatternAny,
			Patterns: []string{
				`(?i)\b(remove-localuser|new-localuser|add-localgroupmember|remove-localgroupmember)\b`,
				`(?i)\bnet\s+user\b[^|;]*/(add|delete)`,
				`(?i)\buser(add|del|mod)\b`,
			},
			Category:    "account-management",
			Action:      domain.ActionConfirm,
			RiskLevel:   domain.RiskHigh,
			Description: "Creates, deletes or modifies user accounts",
		},
		{
			Kind: domain.PatternAny,
			Patterns: []string{
				`(?i)\b(register-scheduledtask|unregister-scheduledtask|schtasks)\b`,
				`(?i)\bcrontab\s+-r\b`,
			},
			Category:    "scheduled-task",
			Action:      domain.ActionConfirm,
			RiskLevel:   domain.RiskMedium,
			Description: "Alters scheduled tasks",
		},
		{
			Kind: domain.PatternAny,
			Patterns: []string{
				`(?i)\bset-netfirewallprofile\b`,
				`(?i)\bnetsh\s+advfirewall\b`,
				`(?i)\b(iptables|ufw)\b[^|;]*(-f\b|--flush|disable)`,
			},
			Category:    "firewall-change",
			Action:      domain.ActionConfirm,
			RiskLevel:   domain.RiskHigh,
			Description: "Changes firewall configuration",
		},
		{
			Kind: domain.PatternAny,
			Patterns: []string{
				`(?i)^sudo\s`,
				`(?i)\bstart-process\b[^|;]*-verb\s+runas`,
				`(?i)\brunas\s+/user:`,
			},
			Category:    "privilege-escalation",
			Action:      domain.ActionConfirm,
			RiskLevel:   domain.RiskMedium,
			Description: "Runs with elevated privileges",
		},
		{
			Kind: domain.PatternAny,
			Patterns: []string{
				`(?i)^get-\w+`,
				`(?i)^(ls|dir|pwd|whoami|date|hostname|uname|echo|cat|type)\b`,
				`(?i)^(test-path|select-string|measure-object|select-object|where-object|sort-object|format-table|format-list|out-string)\b`,
				`(?i)^git\s+(status|log|diff|branch|show)\b`,
				`(?i)^(df|du|free|uptime)\b`,
			},
			Category:    "read-only",
			Action:      domain.ActionAllow,
			RiskLevel:   domain.RiskSafe,
			Description: "Read-only query with no side effects",
		},
	}
}
