// Package store persists entity-space documents in relational tables
// described by querysql.Table metadata.
//
// A document is one row in its root table. Each nested object or object
// array lives in a child table keyed by the parent id:
//   - _parent_id: id of the owning row
//   - _position: element index, so arrays load back in order
//
// # Reads
//
// Reads are two-phase. The id query built by querysql.FormatSelect returns
// root ids (possibly repeated when joins fan out). The store deduplicates
// them in order, applies any post-fetch skip/take, then loads the full
// documents and all of their relations by id.
//
// Every query orders by id as the last term, so results are identical
// across runs.
//
// NULL columns are omitted from loaded documents. A cleared field reads
// back as absent, the same as in the memory backend.
//
// # Database Configuration
//
// SQLite databases are opened with:
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// PostgreSQL connections go through lib/pq.
package store
