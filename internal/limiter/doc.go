// Package limiter implements the in-memory admission algorithms and the
// per-client registry that picks one for each identity.
//
// # Algorithms
//
//   - FixedWindowLimiter: up to Limit calls per window. A window starts with
//     the first call after the previous one expired, and every call counts,
//     including denied ones.
//   - SlidingWindowLimiter: up to Limit admitted calls within the trailing
//     WindowSeconds. Only admitted calls are remembered.
//   - TokenBucketLimiter: a bucket of Capacity tokens refilled at
//     RefillRatePerSecond, one token per admitted call.
//
// All three read time from a clock.Clock, so tests drive them with
// clock.Manual instead of sleeping.
//
// # Concurrency
//
// Per-key state lives in shards selected by an xxhash of the key. The lookup,
// lazy creation and read-modify-write of one key happen under its shard lock.
//
// # Registry
//
// Manager maps identities to Config through a Policies table with a mandatory
// "default" entry. Each identity gets its own limiter instance the first time
// it is seen; the binding never changes while the process runs.
package limiter
