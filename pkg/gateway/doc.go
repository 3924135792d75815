/*
Package gateway maintains the persistent sessions between the control plane
and the per-node agents, and is the only component that talks to agent
transports directly.

# Session model

Each online node holds exactly one active session. An agent connects over
TCP and must present a hello frame carrying its node id and the agent key
stored on the node record; anything else closes the connection. A new
session for an already-connected node replaces the previous one, and the
previous session's pending work fails with node_unavailable. Losing the
transport marks the node offline until the next successful handshake, and a
liveness sweep marks nodes offline when no heartbeat arrives inside the
agreed window.

# Wire format

Frames are length-delimited JSON: a 4-byte big-endian payload length
followed by the JSON body. The frame set is closed; unknown types on either
side are logged and dropped. Control-plane frames carry a correlation id so
async agent results (backup_complete, restore_complete) can be awaited with
Expect.

	+--------------------+----------------------------------+
	| length (uint32 BE) | {"type":"start_server",...}      |
	+--------------------+----------------------------------+

# Send contract

Send succeeds once the frame has been handed to the active session's ordered
write queue; it is an ack of admission, not of delivery. Admission is
bounded (default 5s): beyond the bound the call fails with
node_backpressured, and with no live session it fails with node_unavailable
immediately. A session's write queue is drained by a single writer
goroutine, so commands reach the agent in submission order.

# Events

Inbound frames are routed by type: status updates, backup and restore
completions go to the registered EventHandler (the lifecycle engine); log
lines and metric samples are batched and flushed to the store off the
session read loop; heartbeats refresh the node's last-seen timestamp.
Events are applied by server id even when nothing awaits their correlation.

# Blob streaming

StreamTo moves large artifacts (backup transfer) to a node by framing
upload_blob_chunk messages of at most one MiB of data each, in order,
terminated by an explicit EOS chunk. A partial stream leaves the target
path indeterminate; retrying or cleaning up is the caller's job.
*/
package gateway
