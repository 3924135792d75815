package filetree

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/catalystpanel/catalyst/pkg/errdefs"
)

// Tree is the file surface rooted at one workload's data directory. Every
// operation resolves caller paths against the base and refuses anything
// that escapes it.
type Tree struct {
	base string
}

// Open returns the tree for a workload directory under root, creating the
// base on demand.
func Open(root, uuid string) (*Tree, error) {
	base := filepath.Join(root, uuid)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, errdefs.Wrap(errdefs.KindInternal, "create workload directory", err)
	}
	return &Tree{base: base}, nil
}

// Base returns the absolute chroot base.
func (t *Tree) Base() string {
	return t.base
}

// splitSegments normalizes separators and drops empty segments. ".." is
// kept; Resolve relies on filepath.Join's cleaning plus the prefix check
// to reject escapes.
func splitSegments(p string) []string {
	p = strings.ReplaceAll(p, "\\", "/")
	parts := strings.Split(p, "/")
	segs := parts[:0]
	for _, s := range parts {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// Normalize returns the logical form of a caller path: absolute, forward
// slashes, no empty segments, dot segments resolved. It never touches the
// file system, so it is also what REALPATH answers with.
func Normalize(p string) string {
	segs := splitSegments(p)
	logical := path.Join(append([]string{"/"}, segs...)...)
	if !strings.HasPrefix(logical, "/") {
		logical = "/" + logical
	}
	return logical
}

// Resolve maps a caller-supplied path into the chroot. The resolved path
// must be the base itself or live strictly under it.
func (t *Tree) Resolve(p string) (string, error) {
	segs := splitSegments(p)
	resolved := filepath.Join(append([]string{t.base}, segs...)...)
	if resolved != t.base && !strings.HasPrefix(resolved, t.base+string(filepath.Separator)) {
		return "", errdefs.New(errdefs.KindPathTraversal,
			fmt.Sprintf("path %q escapes the workload directory", p))
	}
	return resolved, nil
}

// Entry describes one file system object in API responses.
type Entry struct {
	Name      string    `json:"name"`
	Mode      string    `json:"mode"`
	ModeBits  string    `json:"modeBits"`
	Size      int64     `json:"size"`
	IsFile    bool      `json:"isFile"`
	IsSymlink bool      `json:"isSymlink"`
	Mime      string    `json:"mime"`
	Modified  time.Time `json:"modified"`
}

func entryFor(name string, info os.FileInfo) Entry {
	e := Entry{
		Name:      name,
		Mode:      info.Mode().String(),
		ModeBits:  fmt.Sprintf("%o", info.Mode().Perm()),
		Size:      info.Size(),
		IsFile:    info.Mode().IsRegular(),
		IsSymlink: info.Mode()&os.ModeSymlink != 0,
		Modified:  info.ModTime(),
	}
	switch {
	case info.IsDir():
		e.Mime = "inode/directory"
	case e.IsSymlink:
		e.Mime = "inode/symlink"
	default:
		if m := mime.TypeByExtension(filepath.Ext(name)); m != "" {
			e.Mime = m
		} else {
			e.Mime = "application/octet-stream"
		}
	}
	return e
}

// List returns the entries of a directory, directories first, each group
// sorted by name.
func (t *Tree) List(p string) ([]Entry, error) {
	dir, err := t.Resolve(p)
	if err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errdefs.NotFound("directory", Normalize(p))
		}
		return nil, errdefs.Wrap(errdefs.KindInternal, "list directory", err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, de := range dirents {
		info, err := de.Info()
		if err != nil {
			continue // entry vanished mid-listing
		}
		entries = append(entries, entryFor(de.Name(), info))
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsFile != entries[j].IsFile {
			return !entries[i].IsFile
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// Stat returns the entry for a single path without following symlinks.
func (t *Tree) Stat(p string) (Entry, error) {
	resolved, err := t.Resolve(p)
	if err != nil {
		return Entry{}, err
	}
	info, err := os.Lstat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, errdefs.NotFound("file", Normalize(p))
		}
		return Entry{}, errdefs.Wrap(errdefs.KindInternal, "stat file", err)
	}
	return entryFor(filepath.Base(resolved), info), nil
}

// ReadFile opens a file for streaming. The caller owns the returned
// ReadCloser.
func (t *Tree) ReadFile(p string) (io.ReadCloser, Entry, error) {
	resolved, err := t.Resolve(p)
	if err != nil {
		return nil, Entry{}, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Entry{}, errdefs.NotFound("file", Normalize(p))
		}
		return nil, Entry{}, errdefs.Wrap(errdefs.KindInternal, "stat file", err)
	}
	if info.IsDir() {
		return nil, Entry{}, errdefs.Validation(fmt.Sprintf("%s is a directory", Normalize(p)))
	}
	f, err := os.Open(resolved)
	if err != nil {
		return nil, Entry{}, errdefs.Wrap(errdefs.KindInternal, "open file", err)
	}
	return f, entryFor(info.Name(), info), nil
}

// WriteFile streams content into a file, creating parent directories and
// truncating any previous content.
func (t *Tree) WriteFile(p string, r io.Reader) (int64, error) {
	resolved, err := t.Resolve(p)
	if err != nil {
		return 0, err
	}
	if resolved == t.base {
		return 0, errdefs.Validation("cannot write to the workload root")
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return 0, errdefs.Wrap(errdefs.KindInternal, "create parent directory", err)
	}
	f, err := os.OpenFile(resolved, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, errdefs.Wrap(errdefs.KindInternal, "open file for write", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, errdefs.Wrap(errdefs.KindInternal, "write file", err)
	}
	return n, nil
}

// CreateDir creates a directory and any missing parents.
func (t *Tree) CreateDir(p string) error {
	resolved, err := t.Resolve(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return errdefs.Wrap(errdefs.KindInternal, "create directory", err)
	}
	return nil
}

// CreateFile creates an empty file. The path must not already exist.
func (t *Tree) CreateFile(p string) error {
	resolved, err := t.Resolve(p)
	if err != nil {
		return err
	}
	if resolved == t.base {
		return errdefs.Validation("missing file name")
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return errdefs.Wrap(errdefs.KindInternal, "create parent directory", err)
	}
	f, err := os.OpenFile(resolved, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return errdefs.Validation(fmt.Sprintf("%s already exists", Normalize(p)))
		}
		return errdefs.Wrap(errdefs.KindInternal, "create file", err)
	}
	return f.Close()
}

// DeleteRecursive removes each path and everything below it. Removing the
// workload root itself is refused.
func (t *Tree) DeleteRecursive(paths []string) error {
	for _, p := range paths {
		resolved, err := t.Resolve(p)
		if err != nil {
			return err
		}
		if resolved == t.base {
			return errdefs.Validation("cannot delete the workload root")
		}
		if err := os.RemoveAll(resolved); err != nil {
			return errdefs.Wrap(errdefs.KindInternal, "delete path", err)
		}
	}
	return nil
}

var octalMode = regexp.MustCompile(`^[0-7]{3,4}$`)

// ParseMode parses a chmod mode string: octal when it looks octal, decimal
// otherwise, valid range [0, 0o777].
func ParseMode(s string) (os.FileMode, error) {
	base := 10
	if octalMode.MatchString(s) {
		base = 8
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil || v > 0o777 {
		return 0, errdefs.Validation(fmt.Sprintf("invalid file mode %q", s))
	}
	return os.FileMode(v), nil
}

// Chmod changes the permission bits of a path.
func (t *Tree) Chmod(p, mode string) error {
	resolved, err := t.Resolve(p)
	if err != nil {
		return err
	}
	fm, err := ParseMode(mode)
	if err != nil {
		return err
	}
	if err := os.Chmod(resolved, fm); err != nil {
		if os.IsNotExist(err) {
			return errdefs.NotFound("file", Normalize(p))
		}
		return errdefs.Wrap(errdefs.KindInternal, "chmod", err)
	}
	return nil
}

// RenamePair is one from→to move.
type RenamePair struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Rename moves each pair, creating target parents on demand. Pairs are
// applied in order; the first failure stops the batch.
func (t *Tree) Rename(pairs []RenamePair) error {
	for _, pair := range pairs {
		from, err := t.Resolve(pair.From)
		if err != nil {
			return err
		}
		to, err := t.Resolve(pair.To)
		if err != nil {
			return err
		}
		if from == t.base || to == t.base {
			return errdefs.Validation("cannot rename the workload root")
		}
		if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
			return errdefs.Wrap(errdefs.KindInternal, "create parent directory", err)
		}
		if err := os.Rename(from, to); err != nil {
			if os.IsNotExist(err) {
				return errdefs.NotFound("file", Normalize(pair.From))
			}
			return errdefs.Wrap(errdefs.KindInternal, "rename", err)
		}
	}
	return nil
}
