// Package onboard owns the onboarding run flows.
//
// Ownership boundary:
// - reserve and collateral initialization runs
// - reserve and collateral configuration runs (admin role bracketed)
// - run state tracking and run reports
//
// A run is single threaded: filter, resolve strategies, plan, then submit
// chunk by chunk. A failed run leaves confirmed chunks committed; re-running
// relies on the address directory to skip completed work.
package onboard
