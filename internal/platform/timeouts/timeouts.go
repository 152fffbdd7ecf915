// Package timeouts defines shared timeout constants used across the portal.
// Centralizing these values prevents drift between the HTTP surface and the
// websocket session plumbing and makes the durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 10 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// HeartbeatInterval is how often the portal pings an idle websocket
// connection.
const HeartbeatInterval = 30 * time.Second

// HeartbeatTimeout is how long a silent websocket peer survives before its
// read deadline fires. It must exceed HeartbeatInterval by enough slack for
// a pong to cross a slow link.
const HeartbeatTimeout = 45 * time.Second
