// Package integration verifies the request log, pricing, circuit breaker and
// cache against real databases started with testcontainers.
//
// Run with: go test -tags=integration ./tests/integration/...
package integration
