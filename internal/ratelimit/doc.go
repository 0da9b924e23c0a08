// Package ratelimit limits requests per client IP with token buckets from
// golang.org/x/time/rate.
//
// State is in memory and local to one process. It blunts a single address
// hammering the site; distributed floods belong to an upstream CDN or WAF.
package ratelimit
