// Package ir provides the value model shared by every synchronization layer.
//
// This package contains value types, the canonical JSON encoding and the
// content hashing used for sync tokens. All other internal packages import
// ir; ir imports nothing internal.
//
// Key design constraints:
//   - Snapshot items are opaque JSON objects held as IRObject
//   - Canonical JSON is the ONLY serialization used for persisted bytes and hashes
//   - Strings entering a Document are NFC normalized (see Normalize)
//   - Non-integer numbers are IRNumber and always encode with a fraction or exponent
package ir
