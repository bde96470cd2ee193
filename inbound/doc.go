// Package inbound adapts HTTP requests at the bridge boundary into
// orchestrator calls and renders launch redirects and grading-callback
// results back to the tool consumer.
package inbound
