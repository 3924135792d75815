package filetree

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/catalystpanel/catalyst/pkg/errdefs"
)

// Format is an archive container format, detected from the file name.
type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatTarGz
)

// DetectFormat classifies an archive name by extension.
func DetectFormat(name string) Format {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz
	default:
		return FormatUnknown
	}
}

// Compress packs paths into an archive inside the tree. Entry names are
// logical paths relative to the tree base, so decompressing at "/"
// reproduces the original layout. An empty archive name defaults to
// archive-<unix-ms>.tar.gz at the tree root. Returns the entry for the
// written archive.
func (t *Tree) Compress(paths []string, archive string) (Entry, error) {
	if len(paths) == 0 {
		return Entry{}, errdefs.Validation("no paths to compress")
	}
	if archive == "" {
		archive = fmt.Sprintf("archive-%d.tar.gz", time.Now().UnixMilli())
	}
	format := DetectFormat(archive)
	if format == FormatUnknown {
		return Entry{}, errdefs.New(errdefs.KindUnsupportedArchive,
			fmt.Sprintf("unsupported archive name %q", archive))
	}

	dest, err := t.Resolve(archive)
	if err != nil {
		return Entry{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Entry{}, errdefs.Wrap(errdefs.KindInternal, "create parent directory", err)
	}
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return Entry{}, errdefs.Wrap(errdefs.KindInternal, "create archive", err)
	}

	switch format {
	case FormatZip:
		err = t.writeZip(f, paths, dest)
	case FormatTarGz:
		err = t.writeTarGz(f, paths, dest)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return Entry{}, err
	}
	return t.Stat(archive)
}

// walkArchiveInputs visits every object under each path. Directories are
// walked recursively; the in-progress archive itself is skipped so a
// whole-tree compress does not swallow its own output.
func (t *Tree) walkArchiveInputs(paths []string, skip string, fn func(logical string, info os.FileInfo, fsPath string) error) error {
	for _, p := range paths {
		root, err := t.Resolve(p)
		if err != nil {
			return err
		}
		info, err := os.Lstat(root)
		if err != nil {
			if os.IsNotExist(err) {
				return errdefs.NotFound("file", Normalize(p))
			}
			return errdefs.Wrap(errdefs.KindInternal, "stat path", err)
		}
		if !info.IsDir() {
			if root == skip {
				continue
			}
			if err := fn(strings.TrimPrefix(Normalize(p), "/"), info, root); err != nil {
				return err
			}
			continue
		}
		err = filepath.WalkDir(root, func(fsPath string, de os.DirEntry, werr error) error {
			if werr != nil {
				return werr
			}
			if fsPath == skip || fsPath == t.base {
				return nil
			}
			di, ierr := de.Info()
			if ierr != nil {
				return nil // entry vanished mid-walk
			}
			rel, rerr := filepath.Rel(t.base, fsPath)
			if rerr != nil {
				return rerr
			}
			return fn(filepath.ToSlash(rel), di, fsPath)
		})
		if err != nil {
			return errdefs.Wrap(errdefs.KindInternal, "walk directory", err)
		}
	}
	return nil
}

func (t *Tree) writeZip(w io.Writer, paths []string, skip string) error {
	zw := zip.NewWriter(w)
	err := t.walkArchiveInputs(paths, skip, func(logical string, info os.FileInfo, fsPath string) error {
		if info.IsDir() {
			hdr := &zip.FileHeader{Name: logical + "/", Modified: info.ModTime()}
			hdr.SetMode(info.Mode())
			_, herr := zw.CreateHeader(hdr)
			return herr
		}
		if !info.Mode().IsRegular() {
			return nil // symlinks and special files are not archived
		}
		hdr := &zip.FileHeader{Name: logical, Method: zip.Deflate, Modified: info.ModTime()}
		hdr.SetMode(info.Mode())
		dst, herr := zw.CreateHeader(hdr)
		if herr != nil {
			return herr
		}
		src, oerr := os.Open(fsPath)
		if oerr != nil {
			return oerr
		}
		_, cerr := io.Copy(dst, src)
		src.Close()
		return cerr
	})
	if err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func (t *Tree) writeTarGz(w io.Writer, paths []string, skip string) error {
	gzw := gzip.NewWriter(w)
	tw := tar.NewWriter(gzw)
	err := t.walkArchiveInputs(paths, skip, func(logical string, info os.FileInfo, fsPath string) error {
		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil // symlinks and special files are not archived
		}
		hdr, herr := tar.FileInfoHeader(info, "")
		if herr != nil {
			return herr
		}
		hdr.Name = logical
		if info.IsDir() {
			hdr.Name += "/"
		}
		if werr := tw.WriteHeader(hdr); werr != nil {
			return werr
		}
		if info.IsDir() {
			return nil
		}
		src, oerr := os.Open(fsPath)
		if oerr != nil {
			return oerr
		}
		_, cerr := io.Copy(tw, src)
		src.Close()
		return cerr
	})
	if err != nil {
		tw.Close()
		gzw.Close()
		return err
	}
	if err := tw.Close(); err != nil {
		gzw.Close()
		return err
	}
	return gzw.Close()
}

// Decompress unpacks an archive into a target directory inside the tree.
// Entries that would land outside the tree fail the whole operation with
// PathTraversal. Unknown archive names fail with UnsupportedArchive.
func (t *Tree) Decompress(archive, target string) error {
	format := DetectFormat(archive)
	if format == FormatUnknown {
		return errdefs.New(errdefs.KindUnsupportedArchive,
			fmt.Sprintf("unsupported archive name %q", archive))
	}
	src, err := t.Resolve(archive)
	if err != nil {
		return err
	}
	if target == "" {
		target = "/"
	}
	if _, err := t.Resolve(target); err != nil {
		return err
	}
	targetLogical := Normalize(target)

	switch format {
	case FormatZip:
		return t.extractZip(src, targetLogical, archive)
	default:
		return t.extractTarGz(src, targetLogical, archive)
	}
}

// entryDest confines one archive entry name under the target directory.
// The raw concatenation is resolved in a single pass so ".." sequences in
// entry names surface as PathTraversal instead of being silently clamped.
func (t *Tree) entryDest(targetLogical, name string) (string, error) {
	return t.Resolve(targetLogical + "/" + name)
}

func safePerm(m os.FileMode, fallback os.FileMode) os.FileMode {
	if m.Perm() == 0 {
		return fallback
	}
	return m.Perm()
}

func (t *Tree) extractZip(src, targetLogical, archiveName string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		if os.IsNotExist(err) {
			return errdefs.NotFound("archive", Normalize(archiveName))
		}
		return errdefs.Wrap(errdefs.KindUnsupportedArchive, "open zip archive", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		dest, derr := t.entryDest(targetLogical, f.Name)
		if derr != nil {
			return derr
		}
		mode := f.Mode()
		if f.FileInfo().IsDir() {
			if merr := os.MkdirAll(dest, safePerm(mode, 0o755)); merr != nil {
				return errdefs.Wrap(errdefs.KindInternal, "create directory", merr)
			}
			continue
		}
		if !mode.IsRegular() {
			continue // symlinks and special files are not extracted
		}
		rc, oerr := f.Open()
		if oerr != nil {
			return errdefs.Wrap(errdefs.KindUnsupportedArchive, "read zip entry", oerr)
		}
		werr := writeExtracted(dest, rc, safePerm(mode, 0o644))
		rc.Close()
		if werr != nil {
			return werr
		}
	}
	return nil
}

func (t *Tree) extractTarGz(src, targetLogical, archiveName string) error {
	f, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return errdefs.NotFound("archive", Normalize(archiveName))
		}
		return errdefs.Wrap(errdefs.KindInternal, "open archive", err)
	}
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return errdefs.Wrap(errdefs.KindUnsupportedArchive, "open gzip stream", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errdefs.Wrap(errdefs.KindUnsupportedArchive, "read tar stream", err)
		}
		dest, derr := t.entryDest(targetLogical, hdr.Name)
		if derr != nil {
			return derr
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if merr := os.MkdirAll(dest, safePerm(hdr.FileInfo().Mode(), 0o755)); merr != nil {
				return errdefs.Wrap(errdefs.KindInternal, "create directory", merr)
			}
		case tar.TypeReg:
			if werr := writeExtracted(dest, tr, safePerm(hdr.FileInfo().Mode(), 0o644)); werr != nil {
				return werr
			}
		default:
			// symlinks and special files are not extracted
		}
	}
	return nil
}

func writeExtracted(dest string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errdefs.Wrap(errdefs.KindInternal, "create parent directory", err)
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return errdefs.Wrap(errdefs.KindInternal, "create file", err)
	}
	_, err = io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errdefs.Wrap(errdefs.KindInternal, "write file", err)
	}
	return nil
}
