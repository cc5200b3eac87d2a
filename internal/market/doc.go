// Package market owns the declarative onboarding inputs.
//
// Ownership boundary:
// - reserve and collateral resource specs
// - shared strategy definitions
// - ordered symbol catalogs and address directories
//
// Every symbol-keyed collection here is an explicit ordered sequence.
// Iteration order is insertion order and downstream submission order
// depends on it.
package market
