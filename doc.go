// Package ledgercache keeps decoded program accounts fresh for a UI or service.
//
// Each logical key maps to a derived address (see package pda). The cache reads
// the address through a ledger.Reader, decodes it with account.Decoder and keeps
// one Entry per key:
//
//	idle -> loading -> success | error
//	success | error --Invalidate--> loading
//
// At most one read per key is in flight; concurrent Get/Fetch calls attach to it.
// A failed read keeps the previous value visible (stale-while-error).
//
// Optional snapshot tier:
//   - Provider: byte store with TTL (Ristretto, BigCache, Redis).
//   - Codec[Snapshot]: (de)serializes snapshots.
//   - GenStore: generation counter per key, shared across replicas with Redis.
//
// Snapshots seed new entries while the first read runs. Writes are fenced by
// generation:
//
//	obs := observe(k)         // before ledger read
//	raw := readAccount(addr)
//	save(k, decode(raw), obs) // stored iff current gen == obs
package ledgercache
