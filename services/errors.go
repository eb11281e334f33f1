package services

import (
	"errors"
	"fmt"

	"github.com/yashwanths814/vital-sub001/db"
)

// Expected outcomes of a manual escalation request. They describe normal
// waiting states, so callers render them as information, not failures.
var (
	ErrAlreadyUsed     = errors.New("manual escalation already used for this issue")
	ErrNotYetEligible  = errors.New("manual escalation not yet available")
	ErrMaxLevelReached = errors.New("issue is already with the highest authority")
	ErrIssueClosed     = errors.New("issue is already closed")
)

// IneligibleError carries the recoverable reason plus the data a caller
// needs to show "available in N days".
type IneligibleError struct {
	Kind          error
	Outcome       string
	RemainingDays int
	Result        *db.EscalationResult
}

func (e *IneligibleError) Error() string {
	if e.RemainingDays > 0 {
		return fmt.Sprintf("%s (available in %d day(s))", e.Kind.Error(), e.RemainingDays)
	}
	return e.Kind.Error()
}

func (e *IneligibleError) Unwrap() error {
	return e.Kind
}

// IsRecoverable reports whether err is one of the expected waiting states
// rather than an operational failure.
func IsRecoverable(err error) bool {
	var ie *IneligibleError
	return errors.As(err, &ie)
}
