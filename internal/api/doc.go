// Package api implements the gateway's HTTP REST API.
//
// This package provides:
//   - Controller listing and lookup (by id or discovery hostname)
//   - Command dispatch with typed, retry-aware error responses
//   - Parsed status and pin readouts
//   - External guest PIN endpoints for the property management system
//   - Prometheus exposition and a health endpoint
//
// # Security
//
// Routes under /api/v1 (except health) require the X-API-Key header when
// security.api_keys.enabled is set. The external PIN routes always require
// it; without a configured key they reject every request.
//
// # Errors
//
// Dispatch failures map to HTTP statuses by kind: UnknownDevice 404,
// NotReadyYet and ConnectionFailed 503 with Retry-After, DeviceRejected 422.
// Every dispatch error body carries a retryable flag.
package api
