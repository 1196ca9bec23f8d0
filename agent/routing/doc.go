// Package routing selects the best agent for a task and dispatches to it.
//
// Selection is a fallback cascade over the capability directory:
//
//  1. available agents handling the task's domain at the task's complexity
//  2. available agents handling the task's domain
//  3. every available agent
//
// Each tier is consulted only when the previous one is empty; when all are
// empty Route returns a NO_AGENTS_FOUND error. Within the chosen tier agents
// are scored as success_rate × availability and ties are broken uniformly at
// random, so several equally good agents share the load.
//
// A failed dispatch is retried with a fresh selection, which lets a
// different agent take over once the directory reflects the failure. Every
// attempt, successful or not, produces exactly one ExecutionOutcome for the
// outcome learner.
//
// The package also contains the adapter layer that turns loosely typed
// planner requests into tasks: a keyword-cascade DomainInferrer and a
// ComplexityInferrer collaborator with a text heuristic fallback.
package routing
