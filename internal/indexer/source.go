package indexer

import (
	"errors"

	"github.com/seanblong/relatedwork/internal/archive"
)

// ErrNoSource is returned when neither a code host nor an archive
// directory is configured.
var ErrNoSource = errors.New("indexer: no pull request source configured")

// NewSource picks where pull requests come from. With both a code host and
// an archive directory the archive caches the code host; with only one, that
// one is used directly. refresh bypasses cached details.
func NewSource(host Source, archiveDir string, refresh bool) (Source, error) {
	switch {
	case host != nil && archiveDir != "":
		return &archive.CachedSource{Upstream: host, Store: archive.New(archiveDir, archive.FormatJSON), Refresh: refresh}, nil
	case host != nil:
		return host, nil
	case archiveDir != "":
		return &archive.Source{Store: archive.New(archiveDir, archive.FormatJSON)}, nil
	default:
		return nil, ErrNoSource
	}
}
