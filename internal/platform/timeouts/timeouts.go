// Package timeouts defines shared timeout constants used across the admin
// plane. Centralizing these values prevents drift between components and
// makes the durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// CredentialCheck caps the re-verification call made by the step-up issuer.
// A timeout surfaces as invalid credentials rather than a hung request.
const CredentialCheck = 3 * time.Second

// Mutation caps the time allowed for one guarded mutation, checks included.
const Mutation = 10 * time.Second
