// Package api exposes the loopback HTTP surface of the telemetry daemon:
// batched event ingestion on POST /v1/events and the /v1/analytics query
// endpoints backed by the event store. Responses are JSON; list endpoints
// return [] rather than null when empty.
package api
