package indexer

import (
	"errors"
	"testing"

	"github.com/seanblong/relatedwork/internal/archive"
)

func TestNewSource(t *testing.T) {
	host := &MockSource{}
	dir := t.TempDir()

	t.Run("host and archive", func(t *testing.T) {
		src, err := NewSource(host, dir, true)
		if err != nil {
			t.Fatalf("NewSource() error = %v", err)
		}
		cs, ok := src.(*archive.CachedSource)
		if !ok {
			t.Fatalf("NewSource() = %T, want *archive.CachedSource", src)
		}
		if cs.Upstream != host || cs.Store.Dir != dir || !cs.Refresh {
			t.Errorf("CachedSource = %+v", cs)
		}
	})

	t.Run("host only", func(t *testing.T) {
		src, err := NewSource(host, "", false)
		if err != nil {
			t.Fatalf("NewSource() error = %v", err)
		}
		if src != host {
			t.Errorf("NewSource() = %v, want the host itself", src)
		}
	})

	t.Run("archive only", func(t *testing.T) {
		src, err := NewSource(nil, dir, false)
		if err != nil {
			t.Fatalf("NewSource() error = %v", err)
		}
		as, ok := src.(*archive.Source)
		if !ok {
			t.Fatalf("NewSource() = %T, want *archive.Source", src)
		}
		if as.Store.Dir != dir {
			t.Errorf("Store.Dir = %q, want %q", as.Store.Dir, dir)
		}
	})

	t.Run("nothing configured", func(t *testing.T) {
		if _, err := NewSource(nil, "", false); !errors.Is(err, ErrNoSource) {
			t.Errorf("NewSource() error = %v, want ErrNoSource", err)
		}
	})
}
