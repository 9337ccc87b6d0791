// Package tracker keeps a keyed registry of in-flight transactions and the
// listeners interested in their lifecycle.
//
// # Model
//
// Every handle owns two things that are created and destroyed together:
//   - an ordered list of transactions stored under it
//   - a map of lifecycle state to ordered listener callbacks
//
// A transaction stored under a handle has each of its transitions forwarded to
// the listeners registered for that handle and state. A listener registered
// after a transaction already reached its state is invoked immediately
// (replay). Each listener observes a given (transaction, state) pair at most
// once, whether it arrives through replay or through a live transition.
//
// # Expiry
//
// Transactions in a terminal state (finalized or error) are removed once their
// mined timestamp is older than the retention window (5 minutes by default).
// When the last transaction of a handle goes away, the handle's listeners go
// with it.
package tracker
