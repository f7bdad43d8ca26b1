// Package gstore implements the MVCC-flavored storage engine that backs
// the transactional accessor (pkg/accessor). It is grounded on
// pkg/storage/badger.go's key-prefix scheme and pkg/storage/transaction.go's
// buffered-operation transaction, generalized with a per-transaction command
// clock so operators can request either the OLD or the NEW view of an
// entity. Deep MVCC machinery (version-list GC, cross-transaction conflict
// detection beyond a commit-time check) is explicitly out of scope — only
// the accessor-facing contract is implemented.
package gstore

// Address is a tagged 64-bit composite (worker_id, gid). The high 16 bits
// carry the owning worker id; the low 48 bits carry the worker-local
// generation id.
type Address uint64

const workerShift = 48
const gidMask = (uint64(1) << workerShift) - 1

// NewAddress packs a worker id and a worker-local gid into an Address.
func NewAddress(workerID uint16, gid uint64) Address {
	return Address(uint64(workerID)<<workerShift | (gid & gidMask))
}

func (a Address) WorkerID() uint16 { return uint16(uint64(a) >> workerShift) }
func (a Address) GID() uint64      { return uint64(a) & gidMask }

// IsLocal reports whether a references an entity owned by localWorker.
func (a Address) IsLocal(localWorker uint16) bool { return a.WorkerID() == localWorker }

// NilAddress is never a valid vertex/edge address.
const NilAddress Address = 0
