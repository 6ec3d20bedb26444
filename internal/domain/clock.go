package domain

import (
	"sync/atomic"

	"github.com/jonboulle/clockwork"
)

type clockRef struct{ clockwork.Clock }

// current anchors relative windows such as "the last three hours" and the
// default archive start. Handlers read it concurrently, so it is swapped atomically.
var current atomic.Pointer[clockRef]

func init() {
	current.Store(&clockRef{clockwork.NewRealClock()})
}

// SetClock replaces the clock behind Now. Pass nil to go back to wall time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	current.Store(&clockRef{c})
}

// Now returns the current time in whole unix seconds, the resolution of
// every TimeWindow.
func Now() int64 {
	return current.Load().Now().Unix()
}
