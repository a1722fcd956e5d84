/*
Package readmodel answers the observability queries the HTTP API exposes:
a next-task preview, the active-assignments join, paginated task-event
history, the file-ownership snapshot, and a registry system-state
snapshot. Every query reads committed state through pkg/queue and
pkg/registry; readmodel never writes.
*/
package readmodel
