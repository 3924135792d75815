/*
Package server is the JSON/REST surface of the control plane.

Every response uses one envelope:

	{"success": true,  "data": ...}
	{"success": false, "error": {"kind": "...", "message": "..."}}

Handlers translate HTTP into manager calls and classified errors back into
status codes through errdefs.HTTPStatus. Authentication is a bearer token
resolved by the session store; the resolved principal id travels in the
request context and every manager method re-checks authorization against
it, so the HTTP layer carries no policy of its own.

The file-tree endpoints operate on the workload's chroot-confined tree;
a traversal attempt surfaces as a 400 before any file system access.
*/
package server
