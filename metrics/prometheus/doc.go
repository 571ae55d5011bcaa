// Package prometheus renders engine counters in the Prometheus text
// exposition format without importing a client library. Mount
// [Exporter.Handler] on a scrape endpoint.
package prometheus
