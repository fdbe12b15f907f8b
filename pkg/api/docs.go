// Package api provides the HTTP API for resultblend.
//
// Documents are staged with POST /api/v1/blend/upload/{name}, listed with
// GET /api/v1/blend/list and drained into an OpenDocument spreadsheet with
// GET /api/v1/blend/blend. Every /api/v1 route except /stuff/testquery
// requires the configured API key header. Blend cycles are recorded and
// served from /api/v1/blend/history, and changes are streamed to
// websocket clients on /api/v1/ws.
package api
