// Package maintenance contains the core domain types of the orchestrator.
//
// It defines the checkout fingerprint (RepoState), tasks and their results,
// managed services, and the two-phase Bootstrap/Running state machine with
// its pure transition function Next.
package maintenance
