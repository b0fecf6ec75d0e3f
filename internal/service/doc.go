// Package service is the block aggregation service.
//
// Generators call three operations through a transport: GetConfig once at
// startup, then ShowBlock for every update, and GeneratorLog for
// diagnostics. ShowBlock validates its input in the caller's goroutine,
// then hands the block to a single loop goroutine that resolves
// configuration overrides, updates the registry and emits a status line
// when the visible set changed. Every mutation of the registry and every
// write to the bar happens on that goroutine, in arrival order.
//
// Lifecycle:
//
//	Starting -> Running -> Stopped
//
// Run spawns generators and writes the protocol preamble while Starting.
// Calls that arrive before Running wait in the queue. Cancelling Run's
// context stops the loop, fails pending calls with ErrStopped and stops
// every generator before Run returns.
package service
