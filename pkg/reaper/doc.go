/*
Package reaper reclaims locks abandoned by dead workers or a scheduler
that crashed mid-dispatch.

Every ~15s it asks the queue for tasks whose lock is older than the TTL
(default 300s) and, for each, applies the decision table:

	worker healthy && gateway healthy (live /status probe, agent_connected)
	    -> release_claim(back_to_pending=true)
	anything else
	    -> mark_failed_timeout

Every action is guarded by the task's (worker_id, claim_token), so a
worker that recovers and finishes the task in the meantime wins — the
reaper's update silently affects zero rows instead of corrupting a live
claim.
*/
package reaper
