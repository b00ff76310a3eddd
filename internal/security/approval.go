package security

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
)

// PendingApproval is a command parked at the confirmation gate. The caller
// obtains the user's answer out of band and resumes with the token.
type PendingApproval struct {
	Token         string
	Command       string
	Context       *domain.CommandContext
	Result        *domain.ValidationResult
	CorrelationID string
	ExpiresAt     time.Time
}

// Approvals tracks commands awaiting explicit user confirmation. Tokens are
// single-use and expire after the configured TTL.
type Approvals struct {
	ttl time.Duration

	mu      sync.Mutex
	pending map[string]PendingApproval
}

func NewApprovals(ttl time.Duration) *Approvals {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Approvals{
		ttl:     ttl,
		pending: make(map[string]PendingApproval),
	}
}

// Create parks a command and returns its confirmation token.
func (a *Approvals) Create(command string, cmdCtx *domain.CommandContext, result *domain.ValidationResult, correlationID string) string {
	token := uuid.NewString()

	a.mu.Lock()
	a.sweepLocked(time.Now())
	a.pending[token] = PendingApproval{
		Token:         token,
		Command:       command,
		Context:       cmdCtx,
		Result:        result,
		CorrelationID: correlationID,
		ExpiresAt:     time.Now().Add(a.ttl),
	}
	a.mu.Unlock()

	return token
}

// Take removes and returns the pending command for token. Unknown and
// expired tokens both report ErrUnknownConfirmation so a caller cannot
// distinguish guessing from lateness.
func (a *Approvals) Take(token string) (PendingApproval, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pa, ok := a.pending[token]
	if !ok {
		return PendingApproval{}, domain.ErrUnknownConfirmation
	}
	delete(a.pending, token)
	if time.Now().After(pa.ExpiresAt) {
		return PendingApproval{}, domain.ErrUnknownConfirmation
	}
	return pa, nil
}

// Len reports how many confirmations are outstanding.
func (a *Approvals) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Sweep drops expired tokens and returns how many were removed.
func (a *Approvals) Sweep() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sweepLocked(time.Now())
}

func (a *Approvals) sweepLocked(now time.Time) int {
	removed := 0
	for token, pa := range a.pending {
		if now.After(pa.ExpiresAt) {
			delete(a.pending, token)
			removed++
		}
	}
	return removed
}
