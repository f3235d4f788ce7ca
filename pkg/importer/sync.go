package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/bigipctl/bigipctl/pkg/domain"
	"github.com/bigipctl/bigipctl/pkg/storage"
)

// policyFileExts are the file extensions sync mode treats as ASM policy
// exports. Binary exports from the device carry .plc.
var policyFileExts = map[string]bool{
	".xml": true,
	".plc": true,
}

// SyncOptions configure directory sync.
type SyncOptions struct {
	// Dir is the directory of policy files to keep imported.
	Dir string
	// Partition receives the synced policies.
	Partition string
	// Force overwrites device policies that already exist; without it,
	// files whose policy already exists are skipped.
	Force bool
}

// Syncer keeps a directory of policy files imported on a device. Imports of
// distinct policy names may run concurrently; imports of the same name are
// serialized.
type Syncer struct {
	importer *Importer
	history  storage.HistoryStore
	opts     SyncOptions
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	wg    sync.WaitGroup
}

// NewSyncer builds a Syncer on top of an Importer. history may be nil.
func NewSyncer(im *Importer, history storage.HistoryStore, opts SyncOptions, logger *slog.Logger) (*Syncer, error) {
	if opts.Dir == "" {
		return nil, errors.New("sync requires a directory")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		importer: im,
		history:  history,
		opts:     opts,
		logger:   logger,
		locks:    map[string]*sync.Mutex{},
	}, nil
}

// SyncOnce imports every policy file currently in the directory.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	entries, err := os.ReadDir(s.opts.Dir)
	if err != nil {
		return fmt.Errorf("read sync directory: %w", err)
	}

	var failed int
	for _, entry := range entries {
		if entry.IsDir() || !policyFileExts[filepath.Ext(entry.Name())] {
			continue
		}
		if err := s.ImportFile(ctx, filepath.Join(s.opts.Dir, entry.Name())); err != nil {
			if ctx.Err() != nil {
				return err
			}
			failed++
			s.logger.Error("sync import failed", "file", entry.Name(), "error", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of the synced policy files failed to import", failed)
	}
	return nil
}

// Watch imports policy files as they appear or change in the directory, and
// blocks until the context is cancelled. Each changed file is imported on
// its own goroutine, serialized per policy name.
func (s *Syncer) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.opts.Dir); err != nil {
		return fmt.Errorf("watch sync directory: %w", err)
	}
	s.logger.Info("watching policy directory", "dir", s.opts.Dir)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				s.wg.Wait()
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !policyFileExts[filepath.Ext(event.Name)] {
				continue
			}
			path := event.Name
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				if err := s.ImportFile(ctx, path); err != nil && ctx.Err() == nil {
					s.logger.Error("sync import failed", "file", filepath.Base(path), "error", err)
				}
			}()
		case err, ok := <-watcher.Errors:
			if !ok {
				s.wg.Wait()
				return nil
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}

// ImportFile imports one policy file, deriving the policy name from the
// file name, and records the outcome in the history store.
func (s *Syncer) ImportFile(ctx context.Context, path string) error {
	name := policyNameFromFile(path)

	lock := s.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	spec, err := domain.NewPolicySpec(name,
		domain.WithSource(path),
		domain.WithPartition(s.opts.Partition),
		domain.WithForce(s.opts.Force),
	)
	if err != nil {
		return err
	}

	start := time.Now()
	diff, runErr := s.importer.Run(ctx, spec)

	if s.history != nil {
		record := storage.RunRecord{
			ID:        uuid.NewString(),
			Policy:    name,
			Partition: spec.Partition,
			Action:    diff.Action.String(),
			Changed:   diff.Changed,
			StartedAt: start,
			Duration:  time.Since(start),
		}
		if runErr != nil {
			record.Error = runErr.Error()
		}
		if err := s.history.Append(ctx, record); err != nil {
			s.logger.Warn("failed to record run history", "error", err)
		}
	}
	return runErr
}

func (s *Syncer) nameLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[name] = lock
	}
	return lock
}

// policyNameFromFile maps a file path to the device policy name.
func policyNameFromFile(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
