// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

// Package main runs the Vigil server.
//
// @title Vigil API
// @version 1.0
// @description Behavioral signal detection and trust/risk scoring engine.
// @description
// @description Vigil consumes activity events from the business subsystems,
// @description detects abuse signals, and maintains per-subject risk and
// @description trust scores plus daily ranking snapshots. The API is
// @description read-only apart from the admin recompute and detector
// @description toggle endpoints.
// @description
// @description ## Authentication
// @description
// @description Bearer JWT minted by the platform, carrying `sub` (subject id)
// @description and `role` claims. Roles: `admin`, `subject`, `public`.
// @description Ranking snapshots and health are public; subjects can read
// @description their own trust record; everything else is admin-only.
// @description
// @description ## Error Responses
// @description
// @description Every response uses the same envelope; errors carry a
// @description machine-readable `code` (`NOT_FOUND`, `PERMISSION_DENIED`,
// @description `INVALID_ARGUMENT`, `VALIDATION_FAILED`, `UNAUTHORIZED`,
// @description `INTERNAL_ERROR`) plus the request id.
//
// @license.name AGPL-3.0-or-later
// @license.url https://www.gnu.org/licenses/agpl-3.0.html
//
// @BasePath /api/v1
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the JWT.
package main
