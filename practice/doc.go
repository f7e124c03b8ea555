// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

// Package practice is the request orchestrator and HTTP surface of the
// AI practice feature. Each request flows through the same sequence:
// authentication, entitlement resolution, admission control (monthly cap
// and per-minute rate limit), slot reservation for chat sessions, the
// external provider call, the metering commit against the usage ledger,
// and, when the commit draws on an overage block, the billing bridge.
//
// Any failure after a reservation triggers a compensating rollback; audio
// requests are single-shot and have no reservation phase. A billing
// failure after a committed increment is logged and never unwinds the
// commit.
package practice
