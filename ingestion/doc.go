// Package ingestion provides pipeline orchestration for processing document uploads.
//
// The Pipeline type manages the ingestion workflow for documents, including:
//   - Recording an ingestion job in the durable ledger
//   - Extracting text, chunking, and embedding in the background
//   - Committing chunks to the target collection atomically
//
// Submit validates input and records the job synchronously; everything after
// that happens on a worker pool. Callers poll the job ledger for progress.
// A job ends in exactly one of two terminal states: completed or failed.
package ingestion
