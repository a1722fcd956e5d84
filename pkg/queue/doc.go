/*
Package queue implements the task state machine: enqueue, claim, start,
complete, release, and the stale-lock scan, plus the dependency graph and
file-ownership exclusivity registry that back them.

# Claim

ClaimNext is the core primitive. It pulls up to 200 ready candidates
ordered by (priority DESC, created_at ASC), and for the first one whose
dependencies have all succeeded and whose required files are unowned (or
already owned by it), performs two atomicity steps inside one IMMEDIATE
transaction:

  - a conditional UPDATE guarded on (status, locked_by IS NULL) — the CAS
    that makes the claim exclusive;
  - a unique-key INSERT per required file — the exclusivity primitive for
    file ownership.

If the file-ownership insert conflicts with another task's row, the claim
is reverted (ownership rows deleted, task CAS'd back to its prior ready
status) and the next candidate is tried. A lost CAS race or a reverted
claim is never surfaced as an error — ClaimNext simply moves on.

# Guards

Every mutation past claim (MarkRunning, Complete, Release,
MarkFailedTimeout) is guarded by matching (worker_id, claim_token) against
the row's current lock, so a stale caller's update silently affects zero
rows rather than corrupting a newer claim.

# Events

Every committed transition also publishes to an optional events.Broker
(see SetBroker) for a best-effort live tail; the control_task_events table, not
the broker, remains the system of record.
*/
package queue
