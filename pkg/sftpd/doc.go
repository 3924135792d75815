/*
Package sftpd serves chroot-confined SFTP access to workload file trees.

Authentication rides on the SSH password exchange: the username is the
workload id and the password field carries a control-plane session token.
The token resolves to a principal, the access evaluator confirms the
principal may touch the workload's files, and the session is chrooted into
the workload's base directory via pkg/filetree. REALPATH and every listing
answer logical paths only, never the real base.

Operations map to file permissions: reads, listings, and stats need
file.read; writes, renames, mkdir, and chmod need file.write; remove and
rmdir need file.delete. A role carrying the wildcard bypasses all three.

Every request on a session runs under the session's serial lock, so
responses emerge in request order, a correctness property of the SFTP wire
protocol. Sessions idle for 30 minutes are cut.

One RSA host key (2048-bit) identifies the control-plane instance; it is
generated and persisted on first start at the configured path.
*/
package sftpd
