/*
Package scheduler drives ready tasks toward completion.

A single long-running worker (the well-known id
registry.SchedulerWorkerID) repeatedly claims the next ready task, picks
a gateway via the registry, marks the task running, dispatches the
action through pkg/gatewayclient, and finalizes the result:

	for {
		task := queue.ClaimNext(ctx, workerID)
		if task == nil {
			sleep(pollInterval)
			continue
		}
		gw := registry.Select(task.GatewayID)
		queue.MarkRunning(ctx, task.ID, workerID, task.ClaimToken)
		resp := gatewayClient.Action(ctx, gw.GatewayID, gw.Host, ...)
		queue.Complete(ctx, task.ID, workerID, task.ClaimToken, success, result, errMsg)
	}

A claim immediately retries without sleeping; an empty claim sleeps
~1.5s before the next attempt. No available gateway or a transport error
releases the claim back to the queue with a diagnostic reason rather
than leaving it stuck; a lost claim-running race is logged and the loop
moves on without touching the task.
*/
package scheduler
