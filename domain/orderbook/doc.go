// Package orderbook implements the single-symbol matching core: a
// fixed price ladder per side indexed by tick offset, a two-level bit
// directory over level occupancy, intrusive FIFO queues backed by the
// arena pool, and price-time priority matching for market and IOC
// flow.
//
// A book is single-owner. Nothing here locks, logs, or allocates on
// the add/cancel/modify/match path; replay of the same message
// sequence reproduces identical state and trades.
package orderbook
