package wire

import "errors"

// Decode failure modes (spec §4.1). Bad packets are dropped, counted, and
// never relayed by the caller; these sentinels let callers classify the
// drop without string matching.
var (
	ErrTruncated         = errors.New("wire: packet truncated")
	ErrUnknownVersion    = errors.New("wire: unknown packet version")
	ErrBadFlags          = errors.New("wire: inconsistent flags")
	ErrPayloadTooLarge   = errors.New("wire: payload exceeds MaxPayload")
	ErrRouteCountInvalid = errors.New("wire: route hop count invalid")
	ErrTLVTruncated      = errors.New("wire: TLV record truncated")
)
