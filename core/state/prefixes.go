package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	poolLedgerKeyBytes = []byte("pool/ledger")
	poolEpochKeyFormat = "pool/epochs/%020d"
	poolAccountPrefix  = []byte("pool/accounts/")
	rolePrefix         = []byte("role:")
)

// PoolLedgerKey returns the namespace key of the pool ledger singleton.
func PoolLedgerKey() []byte {
	return append([]byte(nil), poolLedgerKeyBytes...)
}

// PoolEpochKey returns the namespace key of the epoch record id. The id is
// zero padded so raw keys sort in epoch order.
func PoolEpochKey(id uint64) []byte {
	return []byte(fmt.Sprintf(poolEpochKeyFormat, id))
}

// PoolAccountKey returns the namespace key of the account record for addr.
func PoolAccountKey(addr common.Address) []byte {
	buf := make([]byte, len(poolAccountPrefix)+common.AddressLength)
	copy(buf, poolAccountPrefix)
	copy(buf[len(poolAccountPrefix):], addr.Bytes())
	return buf
}

func roleKey(role string) []byte {
	buf := make([]byte, len(rolePrefix)+len(role))
	copy(buf, rolePrefix)
	copy(buf[len(rolePrefix):], role)
	return buf
}
