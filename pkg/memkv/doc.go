// Package memkv is a sharded in-memory key/value store with per-key TTLs.
//
// It backs the in-process idle node catalog: keys are grouped by prefix,
// GetDel hands a record to exactly one caller, and a background goroutine
// drops records whose TTL ran out.
//
//   - values are copied on Set and Get
//   - expired keys are invisible to every read even before the expirer runs
//   - an optional OnExpire hook sees keys removed by the expirer
package memkv
