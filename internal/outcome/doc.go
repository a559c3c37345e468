// Package outcome tracks recent per-route connection results and turns them
// into cooldowns that bias future route selection.
//
// The record table is a plain data structure: it does no locking of its
// own. The connection orchestrator owns a reader-writer lock and applies
// updates only under the write half, which is why batched updates are kept
// commutative (each one touches exactly one route's weight).
package outcome
