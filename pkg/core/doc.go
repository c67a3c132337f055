// Package core is the entry point of fx operations.
//
// FxCore runs every operation through a middleware chain around the
// lifecycle orchestrator. The chain instruments the operation, records it in
// the project history, loads project settings and environment info, and on
// the way out persists project settings and environment state, whatever the
// outcome of the operation.
package core
