// Package storage persists auth sessions between process runs.
//
// A Store is a small key/value interface; the auth client writes the
// serialized session under one key and removes it on sign-out. Backends:
//
//   - MemoryStore: process lifetime only (default)
//   - FileStore: one file per key under a directory, for CLIs
//   - RedisStore: shared across instances of a server
//   - SQLiteStore: a single local database file
//
// Open builds a Store from a Config.
package storage
