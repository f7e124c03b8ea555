// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

// Package main is the entry point for the LingoPilot practice service.
//
// The practice service meters AI language practice (chat turns and
// pronunciation assessments) against per-student allowances, bills overage
// blocks through the metered billing provider, and fronts the external AI
// providers.
//
// Usage:
//
//	./practice
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	DATABASE_URL - PostgreSQL connection string
//	REDIS_URL - Redis URL for distributed rate limiting
//	JWT_SECRET - Secret for student token validation
package main

import (
	"lingopilot/platform/practice"
)

func main() {
	practice.Run()
}
