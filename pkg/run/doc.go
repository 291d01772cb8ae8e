// Package run defines the core types shared across the Proofrun pipeline:
// stages, verification depth, per-target stage results, run summaries, and
// the classified error taxonomy. It has no dependencies on other Proofrun
// packages and is imported by all of them.
package run
