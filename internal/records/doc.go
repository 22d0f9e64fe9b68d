// Package records provides structured-tier backends for kvstore.TieredStore.
// Every backend enforces a per-record size limit and reports oversized writes
// with kvstore.ErrItemTooLarge so the tiered store can fall back to blobs.
// Memory is used for development and tests; Postgres is the production backend.
package records
