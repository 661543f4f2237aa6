// Package state persists resolved option snapshots so that a run can be
// inspected after the fact.
//
// Responsibilities:
//   - Store[T] only loads/saves a single snapshot for a single Ref.
//   - Recorder turns a resolved *opts.Config into a snapshot, stamps the
//     storage metadata and hands it to the Store.
//   - The core opts package remains persistence-agnostic; all persistence logic
//     stays behind Store implementations.
//
// Data flow:
//
//	opts.Engine.Resolve -> *opts.Config -> Recorder.Record -> Store.Save
//
// Deterministic keys:
//
//	Ref.Identifier() provides the canonical storage key
//	`schema/<schema>/run/<run_id>` shared by every Store implementation.
package state
