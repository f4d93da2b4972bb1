package store

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/roach88/nexus/internal/ir"
)

// SyncState is the persisted bookkeeping of the last successful flush.
type SyncState struct {
	// DeviceID identifies this installation. It never changes once written.
	DeviceID string

	// LastSynced is the wall time of the last flush that persisted bytes.
	// Zero until the first flush.
	LastSynced time.Time

	// SyncToken is the hex SHA-256 of the last persisted document bytes.
	// Empty until the first flush.
	SyncToken string
}

// LastSyncedMillis returns LastSynced as epoch milliseconds, 0 when unset.
func (s SyncState) LastSyncedMillis() int64 {
	if s.LastSynced.IsZero() {
		return 0
	}
	return s.LastSynced.UnixMilli()
}

// ToIR returns the record's JSON object shape.
func (s SyncState) ToIR() ir.IRObject {
	return ir.IRObject{
		"deviceId":   ir.IRString(s.DeviceID),
		"lastSynced": ir.IRInt(s.LastSyncedMillis()),
		"syncToken":  ir.IRString(s.SyncToken),
	}
}

// MarshalSyncState encodes s as canonical JSON:
//
//	{"deviceId":"...","lastSynced":1700000000000,"syncToken":"..."}
func MarshalSyncState(s SyncState) ([]byte, error) {
	if s.DeviceID == "" {
		return nil, fmt.Errorf("marshal sync state: empty device id")
	}
	data, err := ir.MarshalCanonical(s.ToIR())
	if err != nil {
		return nil, fmt.Errorf("marshal sync state: %w", err)
	}
	return data, nil
}

// UnmarshalSyncState parses a record written by MarshalSyncState.
func UnmarshalSyncState(data []byte) (SyncState, error) {
	v, err := ir.ParseValue(data)
	if err != nil {
		return SyncState{}, fmt.Errorf("unmarshal sync state: %w", err)
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return SyncState{}, fmt.Errorf("unmarshal sync state: expected object, got %s", ir.TypeName(v))
	}

	deviceID, ok := obj["deviceId"].(ir.IRString)
	if !ok || deviceID == "" {
		return SyncState{}, fmt.Errorf("unmarshal sync state: deviceId: expected non-empty string")
	}

	var s SyncState
	s.DeviceID = string(deviceID)

	switch ms := obj["lastSynced"].(type) {
	case nil, ir.IRNull:
	case ir.IRInt:
		if ms < 0 {
			return SyncState{}, fmt.Errorf("unmarshal sync state: lastSynced: negative value %d", ms)
		}
		if ms > 0 {
			s.LastSynced = time.UnixMilli(int64(ms)).UTC()
		}
	default:
		return SyncState{}, fmt.Errorf("unmarshal sync state: lastSynced: expected integer, got %s", ir.TypeName(ms))
	}

	switch tok := obj["syncToken"].(type) {
	case nil, ir.IRNull:
	case ir.IRString:
		if tok != "" {
			if b, err := hex.DecodeString(string(tok)); err != nil || len(b) != 32 {
				return SyncState{}, fmt.Errorf("unmarshal sync state: syncToken: expected hex SHA-256 digest")
			}
		}
		s.SyncToken = string(tok)
	default:
		return SyncState{}, fmt.Errorf("unmarshal sync state: syncToken: expected string, got %s", ir.TypeName(tok))
	}

	return s, nil
}
