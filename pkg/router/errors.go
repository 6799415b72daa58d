package router

import "errors"

// ErrTargetUnknown is returned by SendPrivate when target matches none of
// the three conversation-key forms (mesh peer ID, raw noise public key
// hex, overlay alias) and so cannot be parked or routed at all (spec §7).
var ErrTargetUnknown = errors.New("router: send target is not a recognized conversation key")

var errOverlayUnavailable = errors.New("router: overlay transport not configured")
