package state

import (
	"errors"
	"fmt"
	"math"
)

// SchemaVersion identifies the on-disk layout of the pool records. Bump it
// whenever a stored record changes shape.
const SchemaVersion uint32 = 1

var (
	schemaVersionKey = []byte("state/version")
	// ErrSchemaMismatch reports a database written by an incompatible build.
	ErrSchemaMismatch = errors.New("state: schema version mismatch")
)

// SetSchemaVersion records version in state.
func (m *Manager) SetSchemaVersion(version uint32) error {
	if m == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	return m.KVPut(schemaVersionKey, uint64(version))
}

// SchemaVersion returns the stored version and whether one was present.
func (m *Manager) SchemaVersion() (uint32, bool, error) {
	if m == nil {
		return 0, false, fmt.Errorf("state: manager unavailable")
	}
	var stored uint64
	ok, err := m.KVGet(schemaVersionKey, &stored)
	if err != nil || !ok {
		return 0, false, err
	}
	if stored > uint64(math.MaxUint32) {
		return 0, false, fmt.Errorf("state: schema version overflow: %d", stored)
	}
	return uint32(stored), true, nil
}

// EnsureSchemaVersion stamps an empty database with SchemaVersion and
// rejects one stamped with anything else.
func (m *Manager) EnsureSchemaVersion() error {
	version, ok, err := m.SchemaVersion()
	if err != nil {
		return err
	}
	if !ok {
		return m.SetSchemaVersion(SchemaVersion)
	}
	if version != SchemaVersion {
		return fmt.Errorf("%w: on-disk=%d expected=%d", ErrSchemaMismatch, version, SchemaVersion)
	}
	return nil
}
