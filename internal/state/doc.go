// Package state holds the in-process domain state: the synchronizable
// snapshot plus per-device view settings that never leave the machine.
//
// Container is an explicit publish/subscribe mediator. Writers replace the
// state through SetSnapshot or Update; subscribers register a Selector and
// are called synchronously, after the write lock is released, whenever the
// selected projection changes. Every write bumps a version so consumers that
// queue notifications can discard stale ones.
package state
