/*
Package ratelimit applies a per-IP token bucket (golang.org/x/time/rate)
to the HTTP API's protected endpoints, defaulting to 120 requests/minute.
Each client IP gets its own bucket, created lazily on first request;
Cleanup (run hourly via StartCleanupJob) clears the whole map once the
tracked-IP count grows past a threshold rather than tracking individual
last-seen times.
*/
package ratelimit
