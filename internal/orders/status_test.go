package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusReserved},
		{StatusPending, StatusFailed},
		{StatusReserved, StatusPaid},
		{StatusReserved, StatusCancelled},
		{StatusPaid, StatusReady},
		{StatusReady, StatusDelivered},
	}
	allowedSet := map[[2]Status]bool{}
	for _, tc := range allowed {
		allowedSet[[2]Status{tc.from, tc.to}] = true
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	// semua pasangan lain ditolak
	all := []Status{StatusPending, StatusReserved, StatusPaid, StatusReady, StatusDelivered, StatusCancelled, StatusFailed}
	for _, from := range all {
		for _, to := range all {
			if allowedSet[[2]Status{from, to}] {
				continue
			}
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusDelivered, StatusCancelled, StatusFailed} {
		assert.True(t, s.Terminal(), "%s", s)
	}
	for _, s := range []Status{StatusPending, StatusReserved, StatusPaid, StatusReady} {
		assert.False(t, s.Terminal(), "%s", s)
	}
}

func TestCanTransitionUnknownStatus(t *testing.T) {
	assert.False(t, CanTransition("BOGUS", StatusPaid))
	assert.False(t, CanTransition(StatusReserved, "BOGUS"))
}
