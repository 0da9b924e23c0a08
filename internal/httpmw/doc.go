// Package httpmw provides HTTP middleware for the public site listener.
//
// httpserver.NewHandler composes them outermost first: security headers,
// recover, request ID, client IP, rate limiting, OTel tracing, trace
// response headers, metrics, request-scoped logging, then the chi router
// with access logging and route annotation.
//
// Query strings, user agents and other request headers are kept out of log
// records.
package httpmw
