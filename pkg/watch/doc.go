// Package watch reports filesystem changes under registered directories.
//
// A [Service] keeps a table of [Registration]s that survives Stop/Start
// cycles. While running, every registration is backed by fsnotify watches and
// a single dispatcher goroutine classifies raw notifications into
// [FileEvent]s, filters them, and delivers them to subscribers in the order
// the OS reported them.
//
// [ConfigWatcher] narrows a [Service] to one file, typically the active
// ruleset, and reports when it changes on disk.
package watch
