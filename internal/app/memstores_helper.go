package app

// NewMemoryStoresForTest constructs a fully populated in-memory store set.
// Intended for unit tests; production deployments should use PostgreSQL via
// internal/app/storage/postgres.
func NewMemoryStoresForTest() Stores {
	stores := Stores{}
	stores.applyDefaults()
	return stores
}
