// Package workflow loads declarative workflow definitions and derives,
// folds, and admits workflow-gated records (§4.4).
//
// Definitions are parsed as CUE documents: CUE's own closedness and type
// constraints reject unknown top-level keys and malformed shapes before any
// Go-level semantic validation (state/transition cross-referencing, unique
// action names, non-empty role requirements) runs.
package workflow
