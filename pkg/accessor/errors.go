package accessor

import "errors"

var (
	// ErrRemoteMutation is returned when a caller tries to mutate an
	// accessor whose address is not owned by the local worker; remote
	// mutation must go through InsertVertexIntoRemote and the distributed
	// coordinator instead.
	ErrRemoteMutation = errors.New("accessor: cannot mutate a remote entity directly")

	// ErrNoCoordinator is returned by InsertVertexIntoRemote when the
	// transaction was opened without a RemoteInserter, i.e. single-worker
	// mode.
	ErrNoCoordinator = errors.New("accessor: no distributed coordinator configured")
)
