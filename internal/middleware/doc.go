// Package middleware provides HTTP middleware for the media streamer.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Response compression (gzip), bypassed for byte-range and media routes
//   - Prometheus request metrics labelled by route template
//   - Panic recovery and per-client rate limiting
package middleware
