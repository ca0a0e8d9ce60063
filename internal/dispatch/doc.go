// Package dispatch serializes work onto a single goroutine.
//
// The push channel's broker library invokes message callbacks on its own
// network goroutines. Entity state in this bridge is single-writer, so
// those callbacks hand their work to a Dispatcher, which executes each
// job in FIFO order on one goroutine. Panics inside a job are recovered
// and logged rather than taking the loop down.
package dispatch
