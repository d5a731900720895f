// Package gate evaluates access decisions against session snapshots.
//
// Gates are advisory: they decide what a client shows or where it
// navigates. The backend enforces access on its own.
//
// Every gate answers Loading while the session store is initializing, so a
// consumer never flashes denied content before the session is known.
package gate
