package types

import "github.com/ethereum/go-ethereum/common"

// Address is a balance's withdraw-condition owner / an order's owner
// key. Re-used from go-ethereum rather than rolled by hand, matching
// how the teacher keys accounts, orders, and positions
// (pkg/app/core/account/account.go, pkg/storage/pebble_store.go).
type Address = common.Address

// ZeroAddress is the sentinel "no owner"/unset address.
var ZeroAddress = common.Address{}
