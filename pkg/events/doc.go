/*
Package events is a small in-memory pub/sub broker used to give the read
model a live tail of task-lifecycle events without polling the database.

	broker := events.NewBroker()
	defer broker.Stop()

	sub := broker.Subscribe("t1") // "" subscribes to every task
	defer broker.Unsubscribe(sub)

	broker.Publish(&events.Event{Type: events.EventTaskSucceeded, TaskID: "t1"})
	ev := <-sub.C

Publish delivers synchronously under the broker lock and never blocks:
a subscription whose buffer is full has its oldest event evicted so the
listener always sees the newest state, with the eviction count reported
by Subscription.Dropped. The broker is never the system of record —
every event it carries also lands in the persisted control_task_events table,
which remains authoritative for anything that must survive a restart or
a missed notification.
*/
package events
