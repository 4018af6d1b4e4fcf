package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	editorerrors "github.com/conneroisu/livecanvas/internal/errors"
	"github.com/conneroisu/livecanvas/internal/logging"
	"github.com/conneroisu/livecanvas/internal/model"
	"github.com/conneroisu/livecanvas/internal/session"
)

// DefaultMaxFileSize bounds the size of a source file loaded into a session.
const DefaultMaxFileSize = 1 << 20

// Sessions is the part of the session manager a Source drives.
type Sessions interface {
	StartSession(ctx context.Context, id, text string, dialect model.Dialect) (*session.StartResult, error)
	CloseSession(ctx context.Context, id string) (bool, error)
}

// SourceOptions configure a Source.
type SourceOptions struct {
	// Paths are files or directories to follow. Directories are walked recursively.
	Paths []string
	// Extensions restricts which files are loaded, e.g. ".jsx".
	Extensions []string
	Debounce   time.Duration
	// Base is the directory session ids are made relative to. Defaults to
	// the working directory.
	Base        string
	MaxFileSize int64
}

// Source keeps one session per watched file. A file that appears or
// changes (re)starts the session named by its slash-separated path
// relative to Base; a file that disappears closes it.
type Source struct {
	sessions Sessions
	logger   logging.Logger
	opts     SourceOptions
}

// NewSource creates a source feeding sessions.
func NewSource(sessions Sessions, logger logging.Logger, opts SourceOptions) *Source {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.Base == "" {
		if wd, err := os.Getwd(); err == nil {
			opts.Base = wd
		}
	}

	return &Source{sessions: sessions, logger: logger.WithComponent("watcher"), opts: opts}
}

// Run seeds a session for every matching file, then follows changes until
// ctx is done. With no paths configured it returns immediately.
func (s *Source) Run(ctx context.Context) error {
	if len(s.opts.Paths) == 0 {
		return nil
	}

	fw, err := NewFileWatcher(s.opts.Debounce, s.logger)
	if err != nil {
		return err
	}
	fw.AddFilter(ExtensionFilter(s.opts.Extensions...))
	fw.AddFilter(NoHiddenFilter)
	fw.AddFilter(NoGitFilter)
	fw.AddFilter(NoVendorFilter)
	fw.AddHandler(s.Handle)

	for _, path := range s.opts.Paths {
		if err := s.watch(fw, path); err != nil {
			_ = fw.Stop()
			return err
		}
	}

	if err := fw.Start(ctx); err != nil {
		_ = fw.Stop()
		return err
	}

	seeded := s.Seed(ctx, fw.accept)
	s.logger.Info(ctx, "Watching source files", "paths", len(s.opts.Paths), "seeded", seeded)

	<-ctx.Done()
	return fw.Stop()
}

func (s *Source) watch(fw *FileWatcher, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	if info.IsDir() {
		err = fw.AddRecursive(path)
	} else {
		err = fw.AddPath(path)
	}
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	return nil
}

// Seed starts a session for every accepted file below the configured paths
// and returns how many were started.
func (s *Source) Seed(ctx context.Context, accept FileFilter) int {
	seeded := 0
	for _, root := range s.opts.Paths {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if path != root && skipDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if !accept(path) {
				return nil
			}
			if err := s.load(ctx, path); err != nil {
				s.logger.Warn(ctx, err, "Cannot seed session", "path", path)
				return nil
			}
			seeded++
			return nil
		})
	}
	return seeded
}

// Handle applies a debounced batch of file changes to the sessions.
func (s *Source) Handle(ctx context.Context, events []ChangeEvent) error {
	var errs []error
	for _, event := range events {
		var err error
		if event.Type.Gone() {
			err = s.unload(ctx, event.Path)
		} else {
			err = s.load(ctx, event.Path)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Source) load(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s.unload(ctx, path)
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > s.opts.MaxFileSize {
		return fmt.Errorf("%s is %d bytes, larger than the %d byte limit", path, info.Size(), s.opts.MaxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	id := s.SessionID(path)
	result, err := s.sessions.StartSession(ctx, id, string(data), DialectFor(path))
	if err != nil {
		return fmt.Errorf("start session %s: %w", id, err)
	}

	s.logger.Debug(ctx, "Loaded source file", "session_id", id, "elements", len(result.Elements))
	return nil
}

func (s *Source) unload(ctx context.Context, path string) error {
	id := s.SessionID(path)
	closed, err := s.sessions.CloseSession(ctx, id)
	if editorerrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("close session %s: %w", id, err)
	}
	if closed {
		s.logger.Debug(ctx, "Closed session for removed file", "session_id", id)
	}
	return nil
}

// SessionID names the session for path.
func (s *Source) SessionID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	if s.opts.Base != "" {
		if rel, err := filepath.Rel(s.opts.Base, abs); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(abs)
}

// DialectFor picks the markup dialect from a file extension.
func DialectFor(path string) model.Dialect {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return model.DialectHTML
	default:
		return model.DialectJSX
	}
}
