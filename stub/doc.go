// Package stub provides interfaces and stub implementations.
//
// The client packages use these interfaces and implementations so software
// importing them won't have to take on unwanted dependencies.
//
// Stubs are provided for: metrics (prometheus).
package stub
