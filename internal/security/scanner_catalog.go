package security

import (
	"regexp"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
)

// scanPattern is one static-scan catalog entry. Informational findings are
// deliberately absent: the lowest severity emitted is medium.
type scanPattern struct {
	re       *regexp.Regexp
	severity domain.RiskLevel
	message  string
}

// Catalog entries are fixed at build time, so MustCompile is safe here.
var destructivePatterns = []scanPattern{
	{regexp.MustCompile(`(?i)remove-item\s+[^|;]*-recurse[^|;]*-force|remove-item\s+[^|;]*-force[^|;]*-recurse`),
		domain.RiskCritical, "Recursive forced deletion"},
	{regexp.MustCompile(`(?i)\brm\s+-[a-z]*r[a-z]*f|\brm\s+-[a-z]*f[a-z]*r`),
		domain.RiskCritical, "Recursive forced deletion"},
	{regexp.MustCompile(`(?i)\b(format-volume|clear-disk|mkfs(\.\w+)?)\b`),
		domain.RiskCritical, "Disk formatting"},
	{regexp.MustCompile(`(?i)\bdd\s+[^|;]*of=/dev/`),
		domain.RiskCritical, "Raw write to block device"},
	{regexp.MustCompile(`(?i)\b(diskpart|fdisk|parted|remove-partition|initialize-disk)\b`),
		domain.RiskCritical, "Partition manipulation"},
	{regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`),
		domain.RiskCritical, "Fork bomb"},
	{regexp.MustCompile(`(?i)\b(stop-computer|restart-computer|shutdown|reboot|poweroff)\b`),
		domain.RiskHigh, "System shutdown or restart"},
	{regexp.MustCompile(`(?i)\b(stop-service|sc\s+stop|systemctl\s+(stop|disable|mask)|net\s+stop)\b`),
		domain.RiskMedium, "Service stop"},
	{regexp.MustCompile(`(?i)set-executionpolicy\s+(-\w+\s+)*(unrestricted|bypass)`),
		domain.RiskHigh, "Unrestricted script execution policy"},
	{regexp.MustCompile(`(?i)\b(iex|invoke-expression)\b`),
		domain.RiskHigh, "Dynamic code execution"},
	{regexp.MustCompile(`(?i)\b(invoke-webrequest|invoke-restmethod|curl|wget)\b[^|]*\|\s*\w*\s*(iex|invoke-expression|(ba)?sh)\b`),
		domain.RiskCritical, "Remote code piped into an interpreter"},
	{regexp.MustCompile(`(?i)\breg\s+delete\b|\bremove-item(property)?\b[^|;]*\bhk(lm|cu):`),
		domain.RiskHigh, "Registry deletion"},
}

var sensitivePathPatterns = []scanPattern{
	{regexp.MustCompile(`(?i)c:\\windows\\system32\b`),
		domain.RiskHigh, "References the System32 directory"},
	{regexp.MustCompile(`(?i)c:\\windows\b`),
		domain.RiskMedium, "References the Windows system directory"},
	{regexp.MustCompile(`(?i)c:\\program files`),
		domain.RiskMedium, "References the Program Files directory"},
	{regexp.MustCompile(`(?i)\b(hklm|hkey_local_machine)\b`),
		domain.RiskHigh, "References the local-machine registry hive"},
	{regexp.MustCompile(`(?i)\b(hkcu|hkey_current_user)\b`),
		domain.RiskMedium, "References the current-user registry hive"},
	{regexp.MustCompile(`(?i)/etc/(passwd|shadow|sudoers)`),
		domain.RiskHigh, "References a credential or privilege file"},
	{regexp.MustCompile(`(?i)(^|[\s"'(=])/(boot|etc|usr/s?bin|var/lib)(/|\s|"|'|$)`),
		domain.RiskMedium, "References a protected system directory"},
	{regexp.MustCompile(`(?i)(\$env:(windir|systemroot)|%windir%|%systemroot%)`),
		domain.RiskMedium, "References the Windows directory via environment"},
}

var traversalPatterns = []scanPattern{
	{regexp.MustCompile(`\.\./|\.\.\\`),
		domain.RiskHigh, "Path traversal sequence"},
	{regexp.MustCompile(`(?i)(%2e%2e(%2f|%5c|/|\\)|\.\.(%2f|%5c))`),
		domain.RiskHigh, "Encoded path traversal sequence"},
}

var networkPatterns = []scanPattern{
	{regexp.MustCompile(`(?i)\b(invoke-webrequest|invoke-restmethod|iwr|irm)\b`),
		domain.RiskHigh, "Outbound HTTP request"},
	{regexp.MustCompile(`(?i)(\bstart-bitstransfer\b|new-object\s+(system\.)?net\.webclient|\.download(file|string)\s*\()`),
		domain.RiskHigh, "File transfer primitive"},
	{regexp.MustCompile(`(?i)\b(curl|wget|scp|sftp|rsync|ftp)\b`),
		domain.RiskHigh, "File transfer utility"},
	{regexp.MustCompile(`(?i)\bsend-mailmessage\b`),
		domain.RiskHigh, "Outbound mail"},
	{regexp.MustCompile(`(?i)\b(test-connection|test-netconnection|ping|tracert|traceroute|nslookup|resolve-dnsname|telnet)\b`),
		domain.RiskMedium, "Network diagnostic"},
}
