package handler

import "errors"

var (
	ErrEmptyNoisePayload      = errors.New("handler: empty noise payload")
	ErrTruncatedNoiseEnvelope = errors.New("handler: truncated noise envelope")
	ErrUnknownMessageType     = errors.New("handler: unknown message type")
	ErrSignatureRequired      = errors.New("handler: signature required but missing or invalid")
	ErrLinkUnavailable        = errors.New("handler: no direct link to peer")
)
