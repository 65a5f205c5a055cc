package battle

import (
	"reflect"

	"github.com/sirupsen/logrus"
)

// Engine resolves one battle. Implementations must be pure: equal
// (self, opponent, seed) triples return byte-identical Outputs on any
// machine. That determinism is what lets two peers compute the same outcome
// from exchanged boards without ever transmitting the outcome itself.
type Engine interface {
	Resolve(self, opponent Board, seed int64) (Output, error)
}

// ResolveFunc adapts a bare function to the Engine interface.
type ResolveFunc func(self, opponent Board, seed int64) (Output, error)

func (f ResolveFunc) Resolve(self, opponent Board, seed int64) (Output, error) {
	return f(self, opponent, seed)
}

// VerifyOutcome compares a locally computed outcome against an authoritative
// reported one. On mismatch it logs a warning naming the first divergent
// event index and returns the reported outcome anyway: the discrepancy is a
// correctness signal for developers, not something to surface to players.
func VerifyOutcome(local, reported Output) Output {
	if reflect.DeepEqual(local, reported) {
		return reported
	}
	idx := firstDivergence(local.Events, reported.Events)
	logrus.WithFields(logrus.Fields{
		"local-events":    len(local.Events),
		"reported-events": len(reported.Events),
		"first-divergent": idx,
	}).Warn("determinism violation: local battle outcome disagrees with authoritative result, trusting authoritative")
	return reported
}

func firstDivergence(a, b []Event) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if !reflect.DeepEqual(a[i], b[i]) {
			return i
		}
	}
	if len(a) != len(b) {
		return n
	}
	return -1
}
