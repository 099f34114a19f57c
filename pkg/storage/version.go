package storage

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/bts-go/chaincore/pkg/chain/state"
)

// DatabaseVersionProperty names the property a store's schema version
// is stamped under (spec.md §6 "Persistence": "a database_version
// property is checked on open").
const DatabaseVersionProperty = "database_version"

// CurrentDatabaseVersion is this binary's schema version. Bump it
// whenever a table's encoding changes in a way old data can't satisfy.
const CurrentDatabaseVersion uint32 = 1

// ErrNewerDatabaseVersion fires when an opened store's stamped version
// is newer than this binary understands; this binary cannot safely
// read ahead of its own schema.
var ErrNewerDatabaseVersion = errors.New("storage: new_database_version")

// CheckVersion compares store's stamped database_version against
// CurrentDatabaseVersion. needsRebuild reports a stamp older than this
// binary's version (or a malformed one), whose data has to be wiped and
// genesis re-applied; a newer stamp returns ErrNewerDatabaseVersion. A
// fresh store with no stamp yet is not a rebuild, it's first boot.
func CheckVersion(store state.Store) (needsRebuild bool, err error) {
	raw, ok := store.GetProperty(DatabaseVersionProperty)
	if !ok {
		return false, nil
	}
	if len(raw) != 4 {
		return true, nil
	}
	stored := binary.BigEndian.Uint32(raw)
	switch {
	case stored > CurrentDatabaseVersion:
		return false, errors.Wrapf(ErrNewerDatabaseVersion, "stored %d, built %d", stored, CurrentDatabaseVersion)
	case stored < CurrentDatabaseVersion:
		return true, nil
	default:
		return false, nil
	}
}

// StampVersion records CurrentDatabaseVersion, called once a store has
// been (re)seeded from genesis.
func StampVersion(store state.Store) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], CurrentDatabaseVersion)
	store.StoreProperty(DatabaseVersionProperty, buf[:])
}
