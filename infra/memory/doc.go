// Package memory provides the fixed-capacity arena that backs the
// order book. Slots are pre-allocated once, addressed by stable
// handles, and recycled through an explicit free stack, so the hot
// path never touches the Go allocator.
//
// The package is dependency-free. It is not safe for concurrent use;
// a pool belongs to whichever single context owns the book it feeds.
package memory
