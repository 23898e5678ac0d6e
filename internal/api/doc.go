// Package api implements the HTTP control surface for Tollgate.
//
// # Overview
//
// The server exposes the firewall engine (rules, whitelist, blacklist,
// default action, recent decisions) and the proxy service lifecycle as a
// small JSON API. Engine operations call the engine directly; proxy
// commands go through the control loop so they never race each other.
//
// # Endpoints
//
//   - GET/POST/DELETE /api/rules, DELETE /api/rules/{name}, POST /api/rules/bulk
//   - GET/POST/DELETE /api/whitelist and /api/blacklist
//   - GET/PUT /api/default-action
//   - GET /api/logs?limit=N
//   - GET /api/proxy, POST /api/proxy/start, POST /api/proxy/stop, PUT /api/proxy/config
//   - GET /api/ws/logs: live decisions and proxy state changes over a websocket
//   - GET /metrics when a metrics registry is configured
package api
