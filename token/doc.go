// Package token stores refresh-token families in Redis and implements the
// rotation protocol that makes stolen-token replay detectable.
//
// # Model
//
// Every refresh a client performs retires its token and issues a successor
// in the same family. A family therefore is the full lineage of one login.
// Exactly one member of a live family is unrevoked at any moment; presenting
// any other member is proof that two parties hold tokens from the same
// lineage, and the whole family is revoked in response.
//
// Two clocks bound a family. The rotation TTL expires an individual token
// that was never used. The absolute session lifetime runs from the family's
// first issuance and is never extended by rotation; when it passes, no
// amount of refreshing keeps the session alive.
//
// # Concurrency
//
// Rotation is a single Lua script, so Redis serializes concurrent attempts
// on the same token: one wins, the rest observe the revoked flag the winner
// set. The store itself holds no locks.
//
// # What this package must NOT do
//
//   - Generate token IDs or secrets; callers supply them.
//   - Decide what reuse means. The store reports status; the Engine revokes
//     and audits.
package token
