package database

// HNSW index parameters for 96-dim color histograms
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size used by pgvector queries.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// to leave room for excluding the query image itself.
	HNSWSearchMultiplier = 2
)

// Graph backend names.
const (
	BackendPostgres = "postgres"
	BackendMariaDB  = "mariadb"
	BackendBadger   = "badger"
)
