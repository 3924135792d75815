package sftpd

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/sftp"

	"github.com/catalystpanel/catalyst/pkg/access"
	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/filetree"
	"github.com/catalystpanel/catalyst/pkg/types"
)

// handlers implements sftp.Handlers for one authenticated session. All
// methods run under mu so responses never interleave on the wire.
type handlers struct {
	tree     *filetree.Tree
	eval     *access.Evaluator
	userID   string
	workload *types.Workload

	mu sync.Mutex
}

func newHandlers(tree *filetree.Tree, eval *access.Evaluator, userID string, w *types.Workload) sftp.Handlers {
	h := &handlers{tree: tree, eval: eval, userID: userID, workload: w}
	return sftp.Handlers{
		FileGet:  h,
		FilePut:  h,
		FileCmd:  h,
		FileList: h,
	}
}

// permFor maps an SFTP request method to the required file permission
func permFor(method string) string {
	switch method {
	case "Get", "List", "Stat", "Lstat", "Readlink":
		return access.PermFileRead
	case "Put", "Open", "Mkdir", "Rename", "Setstat":
		return access.PermFileWrite
	case "Remove", "Rmdir":
		return access.PermFileDelete
	}
	return access.PermFileWrite
}

func (h *handlers) allowed(method string) error {
	if err := h.eval.Can(h.userID, h.workload, permFor(method)); err != nil {
		return sftp.ErrSSHFxPermissionDenied
	}
	return nil
}

// resolve confines the request path to the chroot base
func (h *handlers) resolve(p string) (string, error) {
	fsPath, err := h.tree.Resolve(p)
	if err != nil {
		if errdefs.IsKind(err, errdefs.KindPathTraversal) {
			return "", sftp.ErrSSHFxPermissionDenied
		}
		return "", err
	}
	return fsPath, nil
}

func (h *handlers) Fileread(r *sftp.Request) (io.ReaderAt, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.allowed(r.Method); err != nil {
		return nil, err
	}
	fsPath, err := h.resolve(r.Filepath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sftp.ErrSSHFxNoSuchFile
		}
		return nil, err
	}
	return f, nil
}

func (h *handlers) Filewrite(r *sftp.Request) (io.WriterAt, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.allowed(r.Method); err != nil {
		return nil, err
	}
	fsPath, err := h.resolve(r.Filepath)
	if err != nil {
		return nil, err
	}

	flags := os.O_RDWR | os.O_CREATE
	pf := r.Pflags()
	if pf.Trunc {
		flags |= os.O_TRUNC
	}
	if pf.Append {
		flags |= os.O_APPEND
	}
	if pf.Excl {
		flags |= os.O_EXCL
	}

	f, err := os.OpenFile(fsPath, flags, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (h *handlers) Filecmd(r *sftp.Request) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.allowed(r.Method); err != nil {
		return err
	}
	fsPath, err := h.resolve(r.Filepath)
	if err != nil {
		return err
	}

	switch r.Method {
	case "Setstat":
		attrs := r.Attributes()
		if attrs.Mode != 0 {
			return os.Chmod(fsPath, os.FileMode(attrs.Mode)&0o777)
		}
		return nil
	case "Rename":
		target, err := h.resolve(r.Target)
		if err != nil {
			return err
		}
		return os.Rename(fsPath, target)
	case "Rmdir", "Remove":
		info, err := os.Stat(fsPath)
		if err != nil {
			if os.IsNotExist(err) {
				return sftp.ErrSSHFxNoSuchFile
			}
			return err
		}
		if r.Method == "Rmdir" && !info.IsDir() {
			return sftp.ErrSSHFxFailure
		}
		return os.Remove(fsPath)
	case "Mkdir":
		return os.Mkdir(fsPath, 0o755)
	case "Link", "Symlink":
		// Links could alias paths outside the chroot.
		return sftp.ErrSSHFxOpUnsupported
	}
	return sftp.ErrSSHFxOpUnsupported
}

func (h *handlers) Filelist(r *sftp.Request) (sftp.ListerAt, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.allowed(r.Method); err != nil {
		return nil, err
	}
	fsPath, err := h.resolve(r.Filepath)
	if err != nil {
		return nil, err
	}

	switch r.Method {
	case "List":
		entries, err := os.ReadDir(fsPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, sftp.ErrSSHFxNoSuchFile
			}
			return nil, err
		}
		infos := make([]os.FileInfo, 0, len(entries))
		for _, e := range entries {
			info, err := e.Info()
			if err != nil {
				continue
			}
			infos = append(infos, info)
		}
		return listerAt(infos), nil
	case "Stat", "Lstat":
		info, err := os.Stat(fsPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, sftp.ErrSSHFxNoSuchFile
			}
			return nil, err
		}
		return listerAt{info}, nil
	}
	return nil, sftp.ErrSSHFxOpUnsupported
}

// listerAt serves a fixed slice of file infos
type listerAt []os.FileInfo

func (l listerAt) ListAt(ls []os.FileInfo, offset int64) (int, error) {
	if offset >= int64(len(l)) {
		return 0, io.EOF
	}
	n := copy(ls, l[offset:])
	if n < len(ls) {
		return n, io.EOF
	}
	return n, nil
}
