// Package api implements the dashboard control surface: REST handlers for
// task lifecycle, videos, status and image serving, plus the WebSocket
// event stream. Handlers translate HTTP concerns into task manager
// operations, map domain errors to status codes, and never leak internal
// error details to clients.
package api
