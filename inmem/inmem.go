// Package inmem provides in-memory implementations of the hrchat stores:
// the per-session streaming state machine and the message and session lists
// it hands results to.
package inmem
