// Package workflow defines the static data underpinning the intent
// pipeline: the closed set of workflow states, the stage ordering, the
// legal-transition matrix, stage events, and the blocking-condition
// resolver. Everything in this package is pure data and total functions
// over it; no storage, no side effects.
//
// Every other package treats this one as the sole authority on which
// transitions are legal. Nothing else is permitted to hard-code state
// or transition knowledge.
package workflow
