/*
Package errdefs defines the classified errors shared by every Catalyst
component.

Components return *Error values carrying a Kind from a closed set; the HTTP
layer maps kinds to status codes with HTTPStatus, and callers branch with
the IsX helpers or KindOf. Wrapping with fmt.Errorf("%w") inside a package
is fine; errors.As digs the kind back out at the boundary.

# Kinds

	not_found            referenced entity does not exist          404
	forbidden            access evaluator denied                   403
	locked               suspension gating                         423
	invalid_state        state machine rejected the transition     409
	validation           malformed input                           400
	capacity_exceeded    insufficient node headroom                409
	allocation_conflict  host port or IP already in use            409
	node_unavailable     no active agent session                   503
	node_backpressured   gateway admission window expired          503
	transfer_failed      a transfer step failed                    500
	path_traversal       path escapes the workload chroot          400
	unsupported_archive  unknown archive extension                 400
	auth_failed          session token rejected                    401
	internal             everything else                           500

# Usage

Returning a classified error:

	if w.Status != types.StatusStopped {
		return errdefs.InvalidState("workload must be stopped to resize")
	}

Branching on kind:

	if errdefs.IsNotFound(err) {
		// create it
	}

Mapping at the HTTP boundary:

	status := errdefs.HTTPStatus(err)

# Propagation rules

Agent dispatch failures are never retried here; retry is a user action.
Audit and log writes are best-effort and must not convert their own
failures into caller-visible errors.
*/
package errdefs
