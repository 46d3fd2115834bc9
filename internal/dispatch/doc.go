// Package dispatch provides the business logic for bulk dispatch-order
// ingestion.
//
// This package is the heart of the service, containing all domain logic
// independent of any UI or transport layer. It can be used by web handlers,
// CLI tools, or tests without modification.
//
// # Pipeline
//
// An operator pastes a block of dispatch notes, one order per line:
//
//	185) A Tuyến: CHÙA VẼ - An Tảo, Hưng Yên- GAOU6458814- Lấy 23/12, giao sáng 24/12- 01x40 HDPE-VN H5604F
//
// Each line flows through four stages:
//
//  1. [ParseText] turns raw lines into [ParsedLine] values (pure, no I/O).
//  2. [MatchDriver] resolves the driver fragment against the roster.
//  3. [SiteResolver] resolves pickup/delivery text to site ids via the
//     backend's find-or-create operation, deduplicated per batch.
//  4. [Runner] submits one order per line (create + optional driver
//     assignment) with per-line failure isolation.
//
// One line's failure never affects another line; the [BatchResult] reports
// every line's outcome in input order.
//
// # Batch lifecycle
//
// [Service] owns running batches. [Service.StartBatch] returns a batch id
// immediately and processes in the background; progress is broadcast to
// subscribers via [Service.SubscribeProgress] and the final result is
// available from [Service.GetBatchResult]. Concurrent batches are bounded by
// [BatchLimiter].
//
// # Error handling
//
// Technical errors are mapped to operator-facing messages using [MapError].
// Each error category has a stable code for support reference:
//
//   - ORD001-ORD004: order submission errors (duplicate codes, customers)
//   - RMT001-RMT003: backend errors (unreachable, timeout, rejected)
//   - BAT001-BAT004: batch lifecycle errors (cancelled, limits, not found)
package dispatch
