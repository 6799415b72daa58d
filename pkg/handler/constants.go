// Package handler implements the Message Handler (typed packet
// construction) and the Packet Processor ingress pipeline (spec §4.7),
// wiring together identity, security, peer manager, noise session,
// fragment manager, mesh graph, and store-and-forward. Grounded on the
// teacher's receive.go/send.go pairing: a linear per-packet pipeline
// (decode, validate, dispatch by type, maybe relay) driven by callbacks
// into the surrounding device rather than a monolithic switch embedded in
// the transport loop.
package handler

// DefaultTTL is the hop budget given to freshly originated packets (spec
// §3: ttl ranges 0..=7).
const DefaultTTL = 7
