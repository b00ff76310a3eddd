// Package tui renders validation, scan and execution reports for the
// terminal.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/guard"
)

var (
	fg      = lipgloss.Color("#E8E6E3") // warm light gray
	dim     = lipgloss.Color("#6B7280") // muted gray
	faint   = lipgloss.Color("#3F3F46") // very dim
	success = lipgloss.Color("#22C55E") // green
	danger  = lipgloss.Color("#EF4444") // red
	warning = lipgloss.Color("#F59E0B") // amber
	accent  = lipgloss.Color("#38BDF8") // sky blue
)

var riskColors = map[domain.RiskLevel]lipgloss.Color{
	domain.RiskSafe:     success,
	domain.RiskLow:      lipgloss.Color("#A3E635"), // lime
	domain.RiskMedium:   warning,
	domain.RiskHigh:     lipgloss.Color("#FB923C"), // orange
	domain.RiskCritical: danger,
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(fg)
	dimStyle      = lipgloss.NewStyle().Foreground(dim)
	faintStyle    = lipgloss.NewStyle().Foreground(faint)
	passStyle     = lipgloss.NewStyle().Foreground(success).Bold(true)
	failStyle     = lipgloss.NewStyle().Foreground(danger).Bold(true)
	warnStyle     = lipgloss.NewStyle().Foreground(warning).Bold(true)
	commandStyle  = lipgloss.NewStyle().Foreground(accent)
	separatorLine = faintStyle.Render(strings.Repeat("─", 64))
)

func riskBadge(level domain.RiskLevel) string {
	color, ok := riskColors[level]
	if !ok {
		color = dim
	}
	return lipgloss.NewStyle().Bold(true).Foreground(color).Render(strings.ToUpper(level.String()))
}

// RenderCheck renders a validation outcome.
func RenderCheck(command string, out *guard.CheckOutcome) string {
	var b strings.Builder
	res := out.Result

	b.WriteString("  " + commandStyle.Render(command) + "\n\n")

	switch out.Decision {
	case domain.DecisionProceed:
		b.WriteString("  " + passStyle.Render("ALLOWED") + "  risk " + riskBadge(res.RiskLevel) + "\n")
	case domain.DecisionAwaitConfirmation:
		b.WriteString("  " + warnStyle.Render("CONFIRMATION REQUIRED") + "  risk " + riskBadge(res.RiskLevel) + "\n")
	case domain.DecisionReject:
		b.WriteString("  " + failStyle.Render("BLOCKED") + "  risk " + riskBadge(res.RiskLevel) + "\n")
		if res.BlockReason != "" {
			b.WriteString("  " + dimStyle.Render(res.BlockReason) + "\n")
		}
	}

	if len(res.MatchedRules) > 0 {
		b.WriteString("\n  " + titleStyle.Render("Matched rules") + "\n")
		for _, name := range res.MatchedRules {
			b.WriteString("    " + dimStyle.Render("●") + " " + name + "\n")
		}
	}
	if len(res.Warnings) > 0 {
		b.WriteString("\n  " + titleStyle.Render("Warnings") + "\n")
		for _, w := range res.Warnings {
			b.WriteString("    " + warnStyle.Render("●") + " " + w + "\n")
		}
	}
	if out.Token != "" {
		b.WriteString("\n  " + dimStyle.Render("confirm with: psguard run --confirm "+out.Token) + "\n")
	}
	return b.String()
}

// RenderScan renders a script scan report.
func RenderScan(out *guard.ScanOutcome) string {
	var b strings.Builder

	if out.Safe {
		b.WriteString("  " + passStyle.Render("SCRIPT OK") + "  " +
			dimStyle.Render(fmt.Sprintf("%d finding(s), none high or critical", len(out.Issues))) + "\n")
	} else {
		b.WriteString("  " + failStyle.Render("SCRIPT UNSAFE") + "  " +
			dimStyle.Render(fmt.Sprintf("%d finding(s)", len(out.Issues))) + "\n")
	}

	if len(out.Issues) > 0 {
		b.WriteString("\n")
		for _, issue := range out.Issues {
			b.WriteString(fmt.Sprintf("  %s %s %s\n",
				riskBadge(issue.Severity),
				dimStyle.Render(fmt.Sprintf("line %d", issue.LineNumber)),
				issue.Message,
			))
			if issue.CodeSnippet != "" {
				b.WriteString("         " + faintStyle.Render(issue.CodeSnippet) + "\n")
			}
		}
	}
	return b.String()
}

// RenderExecution renders a finished execution.
func RenderExecution(res *domain.SandboxResult) string {
	var b strings.Builder

	switch {
	case res.TimedOut:
		b.WriteString("  " + failStyle.Render("TIMED OUT") + "  " +
			dimStyle.Render(fmt.Sprintf("after %.1fs", res.ExecutionTime)) + "\n")
	case res.ReturnCode == domain.ReturnCodeKilled:
		b.WriteString("  " + failStyle.Render("KILLED") + "\n")
	case res.ReturnCode == domain.ReturnCodeStartFailed:
		b.WriteString("  " + failStyle.Render("START FAILED") + "\n")
	case res.ReturnCode == 0:
		b.WriteString("  " + passStyle.Render("COMPLETED") + "  " +
			dimStyle.Render(fmt.Sprintf("%.2fs", res.ExecutionTime)) + "\n")
	default:
		b.WriteString("  " + warnStyle.Render(fmt.Sprintf("EXIT %d", res.ReturnCode)) + "  " +
			dimStyle.Render(fmt.Sprintf("%.2fs", res.ExecutionTime)) + "\n")
	}

	if !res.SandboxUsed {
		b.WriteString("  " + warnStyle.Render("ran on host, no sandbox isolation") + "\n")
	}
	if res.Truncated {
		b.WriteString("  " + dimStyle.Render("output truncated at the configured limit") + "\n")
	}

	if res.Stdout != "" {
		b.WriteString("\n  " + separatorLine + "\n")
		b.WriteString(indent(res.Stdout))
	}
	if res.Stderr != "" {
		b.WriteString("\n  " + titleStyle.Render("stderr") + "\n")
		b.WriteString(indent(failStyle.UnsetBold().Render(res.Stderr)))
	}
	return b.String()
}

// RenderRules renders the active rule set in evaluation order.
func RenderRules(rules []domain.SecurityRule) string {
	var b strings.Builder
	b.WriteString("  " + titleStyle.Render(fmt.Sprintf("%d active rules", len(rules))) + "\n\n")

	for _, rule := range rules {
		action := dimStyle.Render(string(rule.Action))
		switch rule.Action {
		case domain.ActionBlock:
			action = failStyle.Render(string(rule.Action))
		case domain.ActionConfirm:
			action = warnStyle.Render(string(rule.Action))
		}
		// Pad by the plain width; the styled string carries ANSI escapes.
		pad := strings.Repeat(" ", max(0, 8-len(rule.Action)))
		b.WriteString(fmt.Sprintf("  %s%s %s %s\n", action, pad, riskBadge(rule.RiskLevel), rule.ID()))
		if rule.Description != "" {
			b.WriteString("           " + faintStyle.Render(rule.Description) + "\n")
		}
	}
	return b.String()
}

// RenderAuditTrail renders audit events for the terminal.
func RenderAuditTrail(events []domain.AuditEvent) string {
	var b strings.Builder
	if len(events) == 0 {
		return "  " + dimStyle.Render("no audit events") + "\n"
	}
	for _, ev := range events {
		pad := strings.Repeat(" ", max(0, 20-len(ev.Decision)))
		line := fmt.Sprintf("  %s  %-12s %s%s %s",
			dimStyle.Render(ev.Timestamp.Format("2006-01-02 15:04:05")),
			string(ev.Kind),
			decisionTag(ev.Decision),
			pad,
			ev.Command,
		)
		b.WriteString(strings.TrimRight(line, " ") + "\n")
	}
	return b.String()
}

func decisionTag(d domain.Decision) string {
	switch d {
	case domain.DecisionProceed:
		return passStyle.Render(string(d))
	case domain.DecisionReject:
		return failStyle.Render(string(d))
	case domain.DecisionAwaitConfirmation:
		return warnStyle.Render(string(d))
	}
	return ""
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n") + "\n"
}
