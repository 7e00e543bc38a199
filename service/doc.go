// Package service hosts the message processor that drives the order
// book: dispatch, trade and order-event callbacks, latency counters,
// the in-memory replay history, and its binary save/load.
//
// An Engine is single-owner. It exposes no asynchronous interface and
// runs callbacks synchronously on the calling goroutine.
package service
