package accessor

import (
	"context"
	"sync"

	"github.com/nornic-labs/graphcore/pkg/gstore"
)

// DataFetcher is the pkg/distcoord seam DataManager uses to fill a cache
// miss (data_clients.remote_vertex/remote_edge(tx_id, gid)).
type DataFetcher interface {
	FetchRemoteVertex(ctx context.Context, txID uint64, addr gstore.Address) (*gstore.VertexData, error)
	FetchRemoteEdge(ctx context.Context, txID uint64, addr gstore.Address) (*gstore.EdgeData, error)
}

// DataManager is the per-transaction cache of remote vertex/edge records.
// It owns no inter-transaction state — one DataManager is created per
// accessor.Transaction and discarded with it.
type DataManager struct {
	mu sync.RWMutex

	txID    uint64
	fetcher DataFetcher

	vertices map[gstore.Address]*gstore.VertexData
	edges    map[gstore.Address]*gstore.EdgeData
}

// NewDataManager creates an empty cache for transaction txID. fetcher may
// be nil in single-worker deployments where no address is ever remote.
func NewDataManager(txID uint64, fetcher DataFetcher) *DataManager {
	return &DataManager{
		txID:     txID,
		fetcher:  fetcher,
		vertices: make(map[gstore.Address]*gstore.VertexData),
		edges:    make(map[gstore.Address]*gstore.EdgeData),
	}
}

func (d *DataManager) cacheVertex(v *gstore.VertexData) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vertices[v.Addr] = v
}

func (d *DataManager) cacheEdge(e *gstore.EdgeData) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.edges[e.Addr] = e
}

// remoteVertex returns the cached record for addr, fetching and caching it
// via the coordinator on a miss. Every scan that yields a remote address
// must have already populated this cache; a genuine miss here still falls
// back to an on-demand fetch rather than panicking, since a scan producing
// a stale address list is a recoverable NotFound, not a programming error.
func (d *DataManager) remoteVertex(addr gstore.Address) (*gstore.VertexData, bool) {
	d.mu.RLock()
	v, ok := d.vertices[addr]
	d.mu.RUnlock()
	if ok {
		return v, true
	}
	if d.fetcher == nil {
		return nil, false
	}
	v, err := d.fetcher.FetchRemoteVertex(context.Background(), d.txID, addr)
	if err != nil || v == nil {
		return nil, false
	}
	d.cacheVertex(v)
	return v, true
}

func (d *DataManager) remoteEdge(addr gstore.Address) (*gstore.EdgeData, bool) {
	d.mu.RLock()
	e, ok := d.edges[addr]
	d.mu.RUnlock()
	if ok {
		return e, true
	}
	if d.fetcher == nil {
		return nil, false
	}
	e, err := d.fetcher.FetchRemoteEdge(context.Background(), d.txID, addr)
	if err != nil || e == nil {
		return nil, false
	}
	d.cacheEdge(e)
	return e, true
}
