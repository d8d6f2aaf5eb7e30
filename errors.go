package reactor

import "errors"

// Error taxonomy. User callback failures are never wrapped here: a panicking
// callback unwinds out of Tick/Run exactly as any Go panic does, since the
// reactor performs no recovery of its own.
var (
	// ErrInvalidTime is returned by At when the resolved target is not
	// strictly in the future relative to whole-second Clock.Now().
	ErrInvalidTime = errors.New("reactor: target time is not strictly in the future")

	// ErrDomain is returned by WatchStream when flags carry neither
	// WatchRead nor WatchWrite.
	ErrDomain = errors.New("reactor: watch flags must include at least one of WatchRead, WatchWrite")

	// ErrUnsupportedPlatform is returned by the default Multiplexer on
	// platforms with no native epoll/kqueue backing when I/O interest is
	// non-empty (idle polling still degrades to a plain sleep).
	ErrUnsupportedPlatform = errors.New("reactor: no native I/O multiplexer for this platform")
)
