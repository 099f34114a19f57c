package storage

import (
	"testing"

	"github.com/bts-go/chaincore/pkg/chain/state"
)

func TestCheckVersionFreshStore(t *testing.T) {
	store := state.NewMemStore()
	needsRebuild, err := CheckVersion(store)
	if err != nil {
		t.Fatalf("CheckVersion: %v", err)
	}
	if needsRebuild {
		t.Fatal("a store with no stamped version should not request a rebuild")
	}
}

func TestCheckVersionCurrent(t *testing.T) {
	store := state.NewMemStore()
	StampVersion(store)
	needsRebuild, err := CheckVersion(store)
	if err != nil {
		t.Fatalf("CheckVersion: %v", err)
	}
	if needsRebuild {
		t.Fatal("a store stamped at the current version should not request a rebuild")
	}
}

func TestCheckVersionOlderTriggersRebuild(t *testing.T) {
	store := state.NewMemStore()
	var buf [4]byte
	buf[3] = byte(CurrentDatabaseVersion - 1)
	store.StoreProperty(DatabaseVersionProperty, buf[:])

	needsRebuild, err := CheckVersion(store)
	if err != nil {
		t.Fatalf("CheckVersion: %v", err)
	}
	if !needsRebuild {
		t.Fatal("a store stamped older than the binary should request a rebuild")
	}
}

func TestCheckVersionNewerFails(t *testing.T) {
	store := state.NewMemStore()
	var buf [4]byte
	buf[3] = byte(CurrentDatabaseVersion + 1)
	store.StoreProperty(DatabaseVersionProperty, buf[:])

	if _, err := CheckVersion(store); err == nil {
		t.Fatal("expected ErrNewerDatabaseVersion when the stored version exceeds the binary's")
	}
}
