package archive

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sitefed/labwork/internal/work"
	"github.com/sitefed/labwork/internal/workspace"
)

// S3Backend archives artifacts to an S3-compatible object store by
// issuing one PUT per file under the target bucket/subpath, keyed on
// pipeline/id/class/relative-path. It speaks plain HTTP rather than a
// vendor SDK since the target only needs to be S3-compatible, not a
// specific provider, and PUT-by-key is the common denominator.
type S3Backend struct {
	HTTPClient *http.Client
	Target     workspace.S3Target
}

func NewS3Backend(target workspace.S3Target) *S3Backend {
	return &S3Backend{HTTPClient: http.DefaultClient, Target: target}
}

func (b *S3Backend) Apply(ctx context.Context, mode work.ArchiveMode, pipeline, id, class, sourcePath string) error {
	switch mode {
	case work.ArchiveBypass, "":
		return nil
	case work.ArchiveDelete:
		return os.RemoveAll(sourcePath)
	case work.ArchiveCopy, work.ArchiveMove, work.ArchiveUpload:
		if _, err := os.Stat(sourcePath); err != nil {
			return fmt.Errorf("archive: %s/%s/%s: %w", pipeline, id, class, err)
		}
		if err := b.uploadTree(ctx, sourcePath, pipeline, id, class); err != nil {
			return fmt.Errorf("archive: upload %s: %w", sourcePath, err)
		}
		if mode == work.ArchiveMove {
			return os.RemoveAll(sourcePath)
		}
		return nil
	default:
		return fmt.Errorf("archive: s3 backend does not support mode %q", mode)
	}
}

func (b *S3Backend) uploadTree(ctx context.Context, sourcePath, pipeline, id, class string) error {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return b.putFile(ctx, sourcePath, b.objectURL(pipeline, id, class, filepath.Base(sourcePath)))
	}

	return filepath.Walk(sourcePath, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(sourcePath, p)
		if err != nil {
			return err
		}
		return b.putFile(ctx, p, b.objectURL(pipeline, id, class, filepath.ToSlash(rel)))
	})
}

func (b *S3Backend) putFile(ctx context.Context, localPath, objectURL string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, objectURL, f)
	if err != nil {
		return err
	}
	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("object store PUT %s: status %d", objectURL, resp.StatusCode)
	}
	return nil
}

func (b *S3Backend) objectURL(pipeline, id, class, rel string) string {
	key := path.Join(b.Target.Subpath, pipeline, id, class, rel)
	return strings.TrimRight(b.Target.URL, "/") + "/" + b.Target.Bucket + "/" + key
}
