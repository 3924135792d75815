/*
Package access resolves whether a principal may perform an action on a
workload.

The evaluator is pure decision logic over stored grants and roles; it never
mutates state. A denial comes back as a classified error (Forbidden or
Locked), an accept as nil.

# Decision order

Short-circuiting on the first accept:

 1. Ownership: the workload's owner is always permitted.
 2. Grant rows: a WorkloadAccess row for (user, workload) whose permission
    set contains the token or "*".
 3. Roles: any role held by the user whose set contains "*" or the token;
    for read scopes (server.view, file.read, logs.view, *.read, *.view),
    "admin.read" also accepts.

# Suspension gating

Gating layers on top of the permission decision and applies to mutating
operations only:

  - CanMutate: Locked while the workload is suspended and
    SUSPENSION_ENFORCED is on. Unsuspend handlers call Can directly, which
    is what makes unsuspend the one allowed mutation.
  - CanDelete: additionally honors SUSPENSION_DELETE_POLICY=block.
  - CanResetCrashes: permitted in any lifecycle state; while suspended it
    follows the CATALYST_RESET_CRASHES_WHILE_SUSPENDED flag.

Reads (Can with a read-scope token) are never gated.

CanFleet covers checks with no workload in scope (node and template
administration, audit reads), where only roles apply.
*/
package access
