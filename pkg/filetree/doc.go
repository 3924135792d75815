/*
Package filetree is the chrooted file surface over a workload's data
directory.

Both the HTTP file routes and the SFTP server funnel every file system
touch through a Tree, which confines all caller-supplied paths to
join(serverDataRoot, workload.uuid). The base directory is created on
demand the first time a tree is opened.

# Path Confinement

Every incoming path goes through the same normalization:

 1. Backslashes become forward slashes.
 2. The path is split on "/" and empty segments are dropped.
 3. The segments are joined onto the absolute base (this also resolves
    "." and "..").
 4. The result must be the base itself or carry the base plus separator
    as a prefix; anything else fails with PathTraversal.

Archive extraction applies the same rule to every entry name, so a
crafted "../" member fails the whole decompress instead of writing
outside the tree.

# Operations

	List              directory entries, directories first
	Stat              single entry, symlinks not followed
	ReadFile          streaming read (caller closes)
	WriteFile         streaming write, parents created, truncating
	CreateDir         mkdir -p
	CreateFile        empty file, must not exist
	DeleteRecursive   rm -rf over a batch of paths (root refused)
	Chmod             mode string, octal when ^[0-7]{3,4}$, else decimal
	Rename            batch of from→to moves, target parents created
	Compress          zip / tar.gz, entries named relative to the base
	Decompress        zip / tar.gz into a target directory

Compress with an empty archive name produces archive-<unix-ms>.tar.gz at
the tree root. Archive names with any other extension fail with
UnsupportedArchive. A whole-tree compress skips the in-progress archive
file so the output does not swallow itself.

Symlinks and special files are carried in listings but never archived or
extracted; only directories and regular files cross the archive boundary.

# Usage

	tree, err := filetree.Open(cfg.ServerFilesRoot, workload.UUID)
	if err != nil {
		return err
	}
	entries, err := tree.List("/world")

# See Also

  - pkg/server for the HTTP routes over this surface
  - pkg/sftpd for the SFTP bridge (REALPATH answers with Normalize)
  - pkg/errdefs for PathTraversal and UnsupportedArchive kinds
*/
package filetree
