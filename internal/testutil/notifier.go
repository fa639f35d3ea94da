package testutil

import (
	"sync"

	"claims-go/internal/claims"
)

// Notification is one call seen by a RecordingNotifier.
type Notification struct {
	Kind   claims.OperationKind
	Before claims.ClaimRecord
	After  claims.ClaimRecord
}

// RecordingNotifier records every notification and cancels kinds listed in Veto.
type RecordingNotifier struct {
	mu    sync.Mutex
	calls []Notification

	Veto map[claims.OperationKind]string
}

var _ claims.Notifier = (*RecordingNotifier)(nil)

func (n *RecordingNotifier) Notify(kind claims.OperationKind, before, after *claims.Claim) (bool, string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	call := Notification{Kind: kind}
	if before != nil {
		call.Before = before.Record()
	}
	if after != nil {
		call.After = after.Record()
	}
	n.calls = append(n.calls, call)

	reason, cancel := n.Veto[kind]
	return cancel, reason
}

// Calls returns a copy of the recorded notifications.
func (n *RecordingNotifier) Calls() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.calls...)
}
