/*
Package api implements the control plane's HTTP/JSON surface: gateway and
worker registration, the task lifecycle (enqueue/claim/start/complete/
release), the synchronous route-task dispatch shortcut, the read-model
observability endpoints (system state, active assignments, file
ownership, task events), and health/metrics.

# Routes

Every mutating and read endpoint lives under /v1 and is registered with
a Go 1.22+ http.ServeMux method+path pattern (e.g. "POST /v1/tasks/{id}/
complete"), so routing never needs a third-party router. /v1/health,
/v1/health/ready, and /metrics are left unauthenticated for orchestrator
probes; every other route passes through the auth and rate-limit
middleware in pkg/api/middleware.go before reaching its handler.

# Error taxonomy

Handlers never hand a raw error to the client. classifyError in
errors.go maps pkg/queue and pkg/registry sentinel errors onto the HTTP
status the external interface promises: 400 for malformed or
validation-rejected input and for transitions that did not apply (claim
token or status no longer matches), 404 for an unknown task, 409 when a
file path is already owned by another active task, 503 when no gateway
is selectable, and 502 when a gateway round trip itself fails. Every
error body is {"error": "<code>", "message": "..."}.

# Auth and rate limiting

Authentication is a single shared API key checked against X-API-Key or
an Authorization: Bearer header; an empty configured key disables it,
which is the local/dev default. Rate limiting is the per-IP token
bucket in pkg/ratelimit. Both compose as ordinary http.HandlerFunc
wrappers rather than a framework's middleware chain.
*/
package api
