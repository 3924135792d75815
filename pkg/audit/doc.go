/*
Package audit appends the control plane's audit trail: who did what to
which resource.

Entries are append-only; nothing in business code updates or deletes them.
Writes are best-effort and decoupled from the caller through a buffered
channel and a single writer goroutine, so a slow store can never block a
request path. Under sustained pressure entries are dropped and counted in
the process log instead.

	auditor.Record(userID, "workload.create", "workload", w.ID, req)
*/
package audit
