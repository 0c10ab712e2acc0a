// Package state persists the save record: the session to artifact id map,
// the rendered title history, and the active comment and caption task sets.
//
// The record lives in a SQLite database and is rewritten in full, inside one
// transaction, on every mutation. Ledger is the in-process owner of the
// record; every read-modify-write happens under its single lock and is
// durable before the lock is released.
package state
