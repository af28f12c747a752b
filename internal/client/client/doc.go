// Package client contains client-side building blocks for mukon.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic API contract (see the Client interface) to talk to
//     the ledger: Submit, raw account reads and the typed Profile, Directory
//     and Conversation reads, and Ping.
//  2. A concrete gRPC implementation (see GRPCClient) that manages a
//     connection, tags calls with a request id, retries transient failures
//     with bounded exponential backoff and maps gRPC statuses to program
//     errors and sentinels.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations) for the CLI,
//     wiring an SQLite database and applying embedded goose migrations.
//
// # Error Handling
//
// Program failures come back as errors wrapping the matching *program.Error,
// so callers match them with errors.Is(err, program.ErrInvalidState) and the
// like. Transport conditions are exposed as sentinels: ErrUnavailable,
// ErrRejected, and common.ErrorNotFound for absent accounts.
//
// Concurrency & Contexts
//
// GRPCClient is safe for concurrent use. All operations accept
// context.Context and honor cancellation/timeouts, including between retries.
package client
