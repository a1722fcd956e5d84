/*
Package gatewayclient wraps the three HTTP endpoints a remote execution
gateway exposes: GET /status (liveness probe, 30s timeout), POST /action
(dispatch a task, 130s timeout covering long-running work), and the
optional GET /sessions. Each gateway id gets its own gobreaker circuit
breaker so a run of failures against one dead gateway trips open instead
of queuing up timeouts behind it; the breaker resets to half-open after
30s to probe recovery.

ClassifyResult turns a raw GatewayActionResponse into the success/failure
verdict the scheduler persists against the task.
*/
package gatewayclient
