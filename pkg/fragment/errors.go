package fragment

import "errors"

var (
	// ErrTooLarge is returned when a packet cannot be split into at most
	// 65535 fragments (the index/total field width).
	ErrTooLarge = errors.New("fragment: packet too large to fragment")

	// ErrUnknownSet is returned when a CONTINUE or END fragment arrives
	// for a fragment_id with no open START.
	ErrUnknownSet = errors.New("fragment: unknown fragment set")

	// ErrBadIndex is returned when a fragment's index is out of range for
	// its set's declared total.
	ErrBadIndex = errors.New("fragment: index out of range")

	// ErrSetFull is returned when the reassembler is already tracking
	// MaxSets concurrent fragment sets and a new START arrives.
	ErrSetFull = errors.New("fragment: too many concurrent fragment sets")
)
