// Package tracking records engagement with dispatched messages.
//
// Outbound email bodies are instrumented by a LinkBuilder: http(s) links are
// rewritten to signed click URLs on the tracking host and a 1x1 open pixel is
// appended. When the tracking endpoint is hit, Service.RecordEvent stamps the
// matching send. Opens and clicks are first-write-wins: the first timestamp
// of each kind is kept and later events of the same kind are no-ops.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package tracking
