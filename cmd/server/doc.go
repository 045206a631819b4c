// Package main is the entry point for the jvcli registry server.
//
// The server is the publishing backend for Jivas agent packages: a REST
// API over a SQLite catalog and a pluggable artifact blob store.
//
// The server provides:
//   - Account signup/login with JWT session tokens
//   - Namespace and membership management
//   - Package publishing with artifact validation
//   - Version resolution and artifact downloads
//   - Deprecation, search, and Prometheus metrics
//
// Configuration:
//   - Environment variables with the JVCLI_ prefix (12-factor)
//   - Optional TOML file via -config (layered over defaults)
//   - CLI flags (override both)
//
// Usage:
//
//	# Environment-driven
//	JVCLI_TOKEN_SECRET=... ./server -port 8800
//
//	# File-driven
//	./server -config /etc/jvcli/registry.toml
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown
package main
