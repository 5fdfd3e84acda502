// Package server implements the HTTP API for the CIO dashboard. It wires the
// routes for priority tasks, high-priority projects and war-room incidents to
// the store, and owns the process lifecycle: connect, listen, health
// reporting and the single graceful shutdown sequence.
package server
