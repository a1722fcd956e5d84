/*
Package metrics exposes Prometheus instrumentation for the control plane
and a small health-check registry used by the /v1/health endpoint.

Metric var blocks cover the queue (skynet_tasks_total,
skynet_tasks_enqueued_total, skynet_claim_conflicts_total,
skynet_tasks_completed_total), the registry (skynet_gateways_total,
skynet_workers_total), the scheduler and reaper loops (cycle/dispatch
duration histograms), the gateway client (request duration, outcome
counters, per-gateway circuit breaker state), and the HTTP API (request
counters/duration, rate-limit rejections). All are registered at init
time and served via Handler(), mounted at /metrics.

Timer is a small helper for wrapping a code block with
ObserveDuration/ObserveDurationVec, used throughout the scheduler and
reaper loops the same way on every cycle.

The health sub-component (RegisterComponent/UpdateComponent/GetHealth)
tracks named components ("store", "scheduler", "api") independently of
Prometheus and backs the JSON /v1/health response.
*/
package metrics
