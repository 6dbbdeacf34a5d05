// Package archive relocates or removes a terminal Work item's output
// artifacts (results/plots/products) per its archive policy, against
// either a POSIX mount or an S3-compatible object store.
package archive

import (
	"context"
	"fmt"

	"github.com/sitefed/labwork/internal/work"
	"github.com/sitefed/labwork/internal/workspace"
)

// Backend applies one archive disposition to one artifact class of a
// single Work item.
type Backend interface {
	// Apply archives sourcePath (a file or directory on local disk) for
	// pipeline/id's class (results/plots/products) under mode.
	// work.ArchiveBypass is a no-op. work.ArchiveDelete removes
	// sourcePath. work.ArchiveCopy duplicates it under the backend's
	// root; work.ArchiveMove relocates it.
	// A missing sourcePath under copy/move is returned as an error,
	// which the caller treats as fatal for this item only.
	Apply(ctx context.Context, mode work.ArchiveMode, pipeline, id, class, sourcePath string) error
}

// ForSite selects the backend configured for site: a POSIX root if the
// workspace names one, otherwise an S3 target. ArchiveUpload always
// requires the S3 target regardless of what's configured as primary.
func ForSite(ws *workspace.Workspace, site string, mode work.ArchiveMode) (Backend, error) {
	if mode == work.ArchiveUpload {
		target, ok := ws.S3Target(site)
		if !ok {
			return nil, fmt.Errorf("archive: site %q has no S3 target configured for upload", site)
		}
		return NewS3Backend(target), nil
	}

	if root, ok := ws.POSIXRoot(site); ok {
		return NewPOSIXBackend(root), nil
	}
	if target, ok := ws.S3Target(site); ok {
		return NewS3Backend(target), nil
	}
	return nil, fmt.Errorf("archive: site %q has no POSIX or S3 archive target configured", site)
}
