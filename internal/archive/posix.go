package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sitefed/labwork/internal/work"
)

// POSIXBackend archives artifacts to a local or network-mounted
// filesystem root. Grounded on the copy-then-clean idiom used for
// workspace provisioning: walk the source tree, recreate it under the
// destination, and only remove the source once the copy is complete.
type POSIXBackend struct {
	Root string
}

func NewPOSIXBackend(root string) *POSIXBackend {
	return &POSIXBackend{Root: root}
}

func (b *POSIXBackend) Apply(ctx context.Context, mode work.ArchiveMode, pipeline, id, class, sourcePath string) error {
	switch mode {
	case work.ArchiveBypass, "":
		return nil
	case work.ArchiveDelete:
		return os.RemoveAll(sourcePath)
	case work.ArchiveCopy, work.ArchiveMove:
		info, err := os.Stat(sourcePath)
		if err != nil {
			return fmt.Errorf("archive: %s/%s/%s: %w", pipeline, id, class, err)
		}
		dest := filepath.Join(b.Root, pipeline, id, class)
		if !info.IsDir() {
			dest = filepath.Join(dest, filepath.Base(sourcePath))
		}
		if err := copyRecursive(sourcePath, dest); err != nil {
			return fmt.Errorf("archive: copy %s -> %s: %w", sourcePath, dest, err)
		}
		if mode == work.ArchiveMove {
			return os.RemoveAll(sourcePath)
		}
		return nil
	default:
		return fmt.Errorf("archive: posix backend does not support mode %q", mode)
	}
}

func copyRecursive(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		return copyFile(src, dest, info.Mode())
	}

	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
