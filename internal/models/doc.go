// Package models defines the core domain models for the bill board.
//
// # Models
//
//   - Bill: a normalized restaurant bill observed from the external store
//   - LineItem: one ordered item on a bill, in serving order
//   - Status: the bill lifecycle (active -> done, one-way)
//
// # Design Principles
//
//  1. **Strict types past the boundary**: raw store records are loosely
//     typed; everything after the normalizer works with decimals and
//     time.Time, never raw strings.
//  2. **Money is decimal**: money fields use shopspring decimals so at
//     least two fractional digits survive normalization exactly.
//  3. **Value semantics for hand-off**: Bill.Clone gives the print
//     workflow a snapshot that later mutations cannot reach.
package models
