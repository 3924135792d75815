/*
Package manager is the composition root and operations layer of the control
plane.

NewManager wires the whole system from one Config: the bbolt store, the
session manager, the access evaluator, the resource arbiter, the agent
gateway, the lifecycle engine, the transfer coordinator, the SFTP server,
the event broker, the audit writer, and the inventory metrics collector.
Start brings the long-running pieces up; Shutdown tears them down in
reverse.

Every mutating operation follows the same shape: resolve the principal's
permission through the access evaluator (including suspension gating),
perform the change (admission-heavy ones inside a single store
transaction), then record an audit entry and publish a broker event. The
HTTP surface in pkg/server is a thin JSON shell over these methods; the
error kinds they return map directly to status codes.

# Workload admission

CreateWorkload runs capacity, port, and IP arbitration atomically with the
workload insert, so two concurrent creates can never both win the same host
port or address. The owner's default permission row is written in the same
transaction. UpdateWorkload re-runs the same arbitration for resource or
binding changes, which require the workload to be stopped; DeleteWorkload
releases the IP reservation in the transaction that removes the row.
*/
package manager
