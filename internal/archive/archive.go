// Package archive keeps pull request details on disk, one JSON or YAML file
// per pull request. A directory of such files is an offline corpus for the
// indexer, and CachedSource uses it to avoid refetching details.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/seanblong/relatedwork/pkg/models"
)

// ErrNotFound is returned when no file holds the requested pull request.
var ErrNotFound = errors.New("archive: pull request not found")

// Format selects the on-disk encoding for new files.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FileSystemWalker walks a directory tree.
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// FileReader reads a whole file.
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
}

// DefaultFileSystemWalker walks with godirwalk.
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// DefaultFileReader reads from the local filesystem.
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

// Store reads and writes pull request files under Dir.
type Store struct {
	Dir        string
	Format     Format
	Walker     FileSystemWalker
	FileReader FileReader
}

// New returns a store rooted at dir writing format (JSON when empty).
func New(dir string, format Format) *Store {
	if format == "" {
		format = FormatJSON
	}
	return &Store{
		Dir:        dir,
		Format:     format,
		Walker:     &DefaultFileSystemWalker{},
		FileReader: &DefaultFileReader{},
	}
}

func fileName(number int, f Format) string {
	return "pr-" + strconv.Itoa(number) + "." + string(f)
}

// Save writes d to Dir, replacing any earlier copy.
func (s *Store) Save(d models.PullRequestDetails) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	var (
		b   []byte
		err error
	)
	switch s.Format {
	case FormatYAML:
		b, err = yaml.Marshal(d)
	default:
		b, err = json.MarshalIndent(d, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode pull request %d: %w", d.Number, err)
	}
	path := filepath.Join(s.Dir, fileName(d.Number, s.Format))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

// Load reads pull request number from Dir in either format.
func (s *Store) Load(number int) (models.PullRequestDetails, error) {
	for _, f := range []Format{FormatJSON, FormatYAML, "yml"} {
		path := filepath.Join(s.Dir, fileName(number, f))
		d, err := s.readFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return d, err
	}
	return models.PullRequestDetails{}, ErrNotFound
}

func (s *Store) readFile(path string) (models.PullRequestDetails, error) {
	var d models.PullRequestDetails
	b, err := s.FileReader.ReadFile(path)
	if err != nil {
		return d, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &d)
	default:
		err = json.Unmarshal(b, &d)
	}
	if err != nil {
		return d, fmt.Errorf("decode %s: %w", path, err)
	}
	return d, nil
}

func isArchiveFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// All reads every archive file under Dir, including subdirectories. Files
// that fail to decode are logged and skipped. The result is ordered by
// descending pull request number.
func (s *Store) All(ctx context.Context) ([]models.PullRequestDetails, error) {
	var out []models.PullRequestDetails
	seen := map[int]bool{}
	err := s.Walker.Walk(s.Dir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if de != nil && de.IsDir() {
				return nil
			}
			if !isArchiveFile(path) {
				return nil
			}
			d, err := s.readFile(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("skipping archive file")
				return nil
			}
			if seen[d.Number] {
				return nil
			}
			seen[d.Number] = true
			out = append(out, d)
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	return out, nil
}
