/*
Package transfer moves a stopped workload from one node to another.

The coordinator runs the multi-step workflow: preflight (stopped workload,
online target with headroom, target differs from source), switch to
transferring, back up on the source agent, move the bytes, restore on the
target agent, and finally an atomic ownership switch in one storage
transaction: release the source IP, allocate on the target, rewrite the
network environment, clear container identity, move the node id, return to
stopped.

Three byte-moving modes:

  - local: shared storage between the nodes, nothing to copy
  - s3: the backup lives in object storage; the coordinator stages it and
    streams the staged file to the target through the gateway
  - stream: the backup lands in the control plane's backups root and is
    streamed to the target through the gateway

Backup and restore outcomes are asynchronous agent events. The coordinator
awaits them by backup-id correlation under bounded timeouts; expiry is a
terminal failure. Any failure after the transferring switch puts the
workload back to stopped on the source node, appends a system log with the
error, and surfaces transfer_failed; bytes already copied are left for the
administrator.
*/
package transfer
