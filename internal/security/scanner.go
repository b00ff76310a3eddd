package security

import (
	"strings"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
)

// Scanner statically inspects script text for dangerous constructs,
// sensitive paths, path traversal and outbound network use. It never
// executes anything and keeps no state between calls.
type Scanner struct{}

func NewScanner() *Scanner {
	return &Scanner{}
}

// Scan runs the four detector passes over every executable line and returns
// the findings in line order. Comment text is skipped: `#` line comments and
// `<# ... #>` block comments are not executable and must not trigger
// findings. Line numbers are 1-based.
func (s *Scanner) Scan(script string) []domain.SecurityIssue {
	var issues []domain.SecurityIssue
	inBlock := false

	lines := strings.Split(script, "\n")
	for i, raw := range lines {
		var code string
		code, inBlock = stripBlockComments(raw, inBlock)

		trimmed := strings.TrimSpace(code)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		snippet := strings.TrimSpace(raw)
		lineNo := i + 1
		for _, pass := range [][]scanPattern{
			destructivePatterns,
			sensitivePathPatterns,
			traversalPatterns,
			networkPatterns,
		} {
			for _, p := range pass {
				if p.re.MatchString(code) {
					issues = append(issues, domain.SecurityIssue{
						Severity:    p.severity,
						Message:     p.message,
						LineNumber:  lineNo,
						CodeSnippet: snippet,
					})
				}
			}
		}
	}
	return issues
}

// stripBlockComments removes `<# ... #>` spans from one line, carrying the
// open/closed state across lines. Several spans on one line are handled.
func stripBlockComments(line string, inBlock bool) (string, bool) {
	var b strings.Builder
	rest := line
	for {
		if inBlock {
			idx := strings.Index(rest, "#>")
			if idx < 0 {
				return b.String(), true
			}
			rest = rest[idx+2:]
			inBlock = false
			continue
		}
		idx := strings.Index(rest, "<#")
		if idx < 0 {
			b.WriteString(rest)
			return b.String(), false
		}
		b.WriteString(rest[:idx])
		rest = rest[idx+2:]
		inBlock = true
	}
}
