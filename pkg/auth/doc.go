/*
Package auth issues and validates the opaque session tokens that
authenticate every Catalyst surface.

A token is 32 bytes of crypto/rand, hex encoded. The HTTP API accepts it as
a bearer credential; the SFTP server accepts the same token in the SSH
password field (with the workload id as the username). Sessions persist in
the store so SFTP logins survive control-plane restarts; a read-through
in-memory map keeps Validate off the database on the hot path.

Expired tokens fail closed: Validate returns an AuthFailed kind and revokes
the token. A background sweep (StartSweep) prunes expired rows.

	sm := auth.NewSessionManager(store)
	sess, _ := sm.Create(user.ID, 0) // DefaultSessionTTL
	userID, err := sm.Validate(sess.Token)
*/
package auth
