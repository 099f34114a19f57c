// Package storage is the pebble-backed implementation of
// state.Store/state.BlockIndexStore (spec.md §3, §4.B). Grounded on
// the teacher's storage.PebbleStore (pkg/storage/pebble_store.go):
// one *pebble.DB, gob-encoded values for chain-state records, keyed by
// a fixed ASCII prefix per table.
package storage

import (
	"bytes"
	"encoding/gob"
)

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
