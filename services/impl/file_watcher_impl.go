package impl

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/byerlikaya/SmartRAG-sub014/config"
	"github.com/byerlikaya/SmartRAG-sub014/models"
	"github.com/byerlikaya/SmartRAG-sub014/services"
	"github.com/byerlikaya/SmartRAG-sub014/services/parser"
)

const (
	watcherUploadedBy   = "file-watcher"
	defaultDebounce     = 750 * time.Millisecond
	defaultWatcherRetry = 3
	defaultWatcherDelay = time.Second
	hashReadBufferBytes = 4096
	watchDirPermissions = 0o755
)

// folderWatcher is one armed folder: its notifier, its config, and the
// channel its event loop closes on exit.
type folderWatcher struct {
	root     string
	cfg      config.WatchedFolderConfig
	notifier *fsnotify.Watcher
	done     chan struct{}
}

// fileWatcherImpl observes the configured folders and feeds new or changed
// files through the document service. Existing files are scanned before
// live events are processed; content hashes keep rescans idempotent.
type fileWatcherImpl struct {
	cfg       config.FileWatcherConfig
	documents services.DocumentService
	registry  *parser.Registry
	logger    *zap.Logger

	debounce   time.Duration
	maxRetries int
	retryDelay time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	folders []*folderWatcher
	started bool
}

func NewFileWatcher(cfg *config.FileWatcherConfig, documents services.DocumentService, registry *parser.Registry, logger *zap.Logger) services.FileWatcherService {
	debounce := defaultDebounce
	if cfg.DebounceMs > 0 {
		debounce = time.Duration(cfg.DebounceMs) * time.Millisecond
	}
	maxRetries := cfg.MaxRetryAttempts
	if maxRetries <= 0 {
		maxRetries = defaultWatcherRetry
	}
	retryDelay := defaultWatcherDelay
	if cfg.RetryDelayMs > 0 {
		retryDelay = time.Duration(cfg.RetryDelayMs) * time.Millisecond
	}
	return &fileWatcherImpl{
		cfg:        *cfg,
		documents:  documents,
		registry:   registry,
		logger:     logger,
		debounce:   debounce,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

func (s *fileWatcherImpl) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	for _, folder := range s.cfg.Folders {
		fw, err := s.armFolder(ctx, folder)
		if err != nil {
			cancel()
			s.teardownLocked()
			return err
		}
		s.folders = append(s.folders, fw)
		go s.watchLoop(runCtx, fw)
	}

	s.cancel = cancel
	s.started = true
	s.logger.Info("file watcher started", zap.Int("folders", len(s.folders)))
	return nil
}

func (s *fileWatcherImpl) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.cancel()
	s.teardownLocked()
	s.started = false
	s.logger.Info("file watcher stopped")
	return nil
}

func (s *fileWatcherImpl) teardownLocked() {
	for _, fw := range s.folders {
		if err := fw.notifier.Close(); err != nil {
			s.logger.Warn("failed to close folder notifier",
				zap.String("folder", fw.root), zap.Error(err))
		}
	}
	for _, fw := range s.folders {
		<-fw.done
	}
	s.folders = nil
}

// armFolder resolves and creates the directory, registers the watches, and
// ingests what is already there. Watches are added before the scan so no
// file slips between the two.
func (s *fileWatcherImpl) armFolder(ctx context.Context, folder config.WatchedFolderConfig) (*folderWatcher, error) {
	root, err := resolveWatchPath(s.cfg.BaseDirectory, folder.Path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, watchDirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create watched folder %s: %w", root, err)
	}

	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher for %s: %w", root, err)
	}
	fw := &folderWatcher{root: root, cfg: folder, notifier: notifier, done: make(chan struct{})}

	if err := notifier.Add(root); err != nil {
		notifier.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", root, err)
	}

	if folder.IncludeSubdirectories {
		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				s.logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(err))
				return nil
			}
			if d.IsDir() {
				if path != root {
					if err := notifier.Add(path); err != nil {
						s.logger.Warn("failed to watch subdirectory", zap.String("path", path), zap.Error(err))
					}
				}
				return nil
			}
			s.ingest(ctx, fw, path)
			return nil
		})
		if walkErr != nil {
			s.logger.Warn("startup scan incomplete", zap.String("folder", root), zap.Error(walkErr))
		}
	} else {
		entries, err := os.ReadDir(root)
		if err != nil {
			s.logger.Warn("startup scan failed", zap.String("folder", root), zap.Error(err))
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				s.ingest(ctx, fw, filepath.Join(root, entry.Name()))
			}
		}
	}

	s.logger.Info("watching folder",
		zap.String("path", root),
		zap.Bool("subdirectories", folder.IncludeSubdirectories))
	return fw, nil
}

// watchLoop debounces raw events into per-path deadlines and ingests a
// path once it has been quiet for a full debounce interval.
func (s *fileWatcherImpl) watchLoop(ctx context.Context, fw *folderWatcher) {
	defer close(fw.done)

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(s.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.notifier.Events:
			if !ok {
				return
			}
			s.noteEvent(fw, event, pending)
		case err, ok := <-fw.notifier.Errors:
			if !ok {
				return
			}
			s.logger.Warn("watcher error", zap.String("folder", fw.root), zap.Error(err))
		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) >= s.debounce {
					delete(pending, path)
					s.ingest(ctx, fw, path)
				}
			}
		}
	}
}

func (s *fileWatcherImpl) noteEvent(fw *folderWatcher, event fsnotify.Event, pending map[string]time.Time) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if fw.cfg.IncludeSubdirectories && event.Has(fsnotify.Create) {
			if err := fw.notifier.Add(event.Name); err != nil {
				s.logger.Warn("failed to watch new subdirectory",
					zap.String("path", event.Name), zap.Error(err))
			}
		}
		return
	}
	pending[event.Name] = time.Now()
}

// ingest runs one file through filter, hash de-duplication, and upload.
// Every failure is isolated to the file.
func (s *fileWatcherImpl) ingest(ctx context.Context, fw *folderWatcher, path string) {
	if !s.eligible(fw, path) {
		return
	}

	hash, err := hashFile(path)
	if err != nil {
		s.logger.Warn("failed to hash watched file", zap.String("path", path), zap.Error(err))
		return
	}
	existing, err := s.documents.FindByFileHash(ctx, hash)
	if err != nil {
		s.logger.Warn("duplicate lookup failed", zap.String("path", path), zap.Error(err))
	} else if existing != nil {
		s.logger.Debug("skipping already-ingested file",
			zap.String("path", path), zap.String("document", existing.FileName))
		return
	}

	content, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn("failed to read watched file", zap.String("path", path), zap.Error(err))
		return
	}
	s.uploadWithRetry(ctx, path, content)
}

func (s *fileWatcherImpl) eligible(fw *folderWatcher, path string) bool {
	if !s.registry.Supports(path) {
		return false
	}
	if len(fw.cfg.AllowedExtensions) == 0 {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	for _, allowed := range fw.cfg.AllowedExtensions {
		if strings.ToLower(strings.TrimPrefix(allowed, ".")) == ext {
			return true
		}
	}
	return false
}

// uploadWithRetry retries transient ingestion failures with linear
// back-off. A skip (unsupported or empty content) is terminal.
func (s *fileWatcherImpl) uploadWithRetry(ctx context.Context, path string, content []byte) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		doc, err := s.documents.UploadDocument(ctx, services.UploadRequest{
			FileName:   filepath.Base(path),
			Content:    content,
			UploadedBy: watcherUploadedBy,
			Metadata:   map[string]string{models.MetaFilePath: path},
		})
		if err == nil {
			s.logger.Info("watched file ingested",
				zap.String("path", path),
				zap.String("documentId", doc.ID.String()))
			return
		}

		var skipped *models.DocumentSkippedError
		if errors.As(err, &skipped) {
			s.logger.Info("watched file skipped",
				zap.String("path", path), zap.String("reason", skipped.Reason))
			return
		}
		if attempt == s.maxRetries {
			s.logger.Error("giving up on watched file",
				zap.String("path", path), zap.Int("attempts", attempt), zap.Error(err))
			return
		}
		s.logger.Warn("watched file ingestion failed, retrying",
			zap.String("path", path), zap.Int("attempt", attempt), zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retryDelay * time.Duration(attempt)):
		}
	}
}

// hashFile streams the file through MD5 in 4 KiB blocks and returns the
// lowercase hex digest.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, hashReadBufferBytes)); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// resolveWatchPath rejects traversal segments and confines the folder to
// the configured base directory; absolute paths without a base must stay
// under the user home root.
func resolveWatchPath(baseDir, folderPath string) (string, error) {
	if strings.TrimSpace(folderPath) == "" {
		return "", models.NewValidationError("watched folder path must not be empty")
	}
	for _, part := range strings.FieldsFunc(folderPath, isPathSeparator) {
		if part == ".." {
			return "", models.NewValidationError("watched folder path %q must not contain '..'", folderPath)
		}
	}

	if filepath.IsAbs(folderPath) {
		root := baseDir
		if root == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to resolve home directory: %w", err)
			}
			root = home
		}
		clean := filepath.Clean(folderPath)
		if !withinDir(root, clean) {
			return "", models.NewValidationError("watched folder %q must stay under %s", folderPath, root)
		}
		return clean, nil
	}

	base := baseDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to resolve working directory: %w", err)
		}
		base = wd
	}
	clean := filepath.Clean(filepath.Join(base, folderPath))
	if !withinDir(base, clean) {
		return "", models.NewValidationError("watched folder %q escapes the base directory", folderPath)
	}
	return clean, nil
}

func isPathSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

func withinDir(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
