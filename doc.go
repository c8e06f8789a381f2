// Package satchel is an embedded key-value store backed by a single
// binary file per namespace, shared safely between threads and between
// processes on the same machine.
//
// Each Engine keeps an in-memory cache of the map for reads. Every
// mutation takes a cross-process write lock, re-reads the freshest
// on-disk map, merges the change, and persists atomically via a temp
// file and rename, so concurrent writers in other processes are never
// clobbered and readers never observe a torn file. A directory watcher
// picks up foreign writes, reloads the map, and publishes the set of
// changed keys; a generation token derived from the file's on-disk
// identity suppresses echo notifications for this instance's own
// writes.
package satchel
