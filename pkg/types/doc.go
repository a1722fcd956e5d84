/*
Package types defines the core data structures shared across the control
plane: tasks, gateways, workers, file ownership, and the task-event log.

These types are used by pkg/store for persistence, pkg/queue for the state
machine, pkg/registry for in-memory directory lookups, and pkg/api for
request/response bodies. None of them carry behavior beyond small
predicates on the status enums (IsReady, IsActive, IsTerminal, Healthy,
Selectable) — the actual transition logic lives in pkg/queue.

# State machine

	queued, released --(claim)--> claimed --(start)--> running
	claimed  --> released | failed | failed_timeout
	running  --> succeeded | failed | released | failed_timeout

queued and released are ready states; claimed and running are active;
succeeded, failed, and failed_timeout are terminal and never transition
again.

# Aliases

Some callers use "pending" and "completed" interchangeably with "queued"
and "succeeded". CanonicalTaskStatus normalizes input; the core never
emits the aliases.
*/
package types
