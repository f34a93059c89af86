package crypto

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileProvider reads a base64-encoded 32-byte key from a file and watches it
// for changes, swapping the in-memory key when the file is rewritten. This
// lets an operator rotate the key by redeploying the key file, without
// restarting the process. Maps encrypted under the old key become
// undecryptable after the swap; rotation is the operator's migration to run.
type FileProvider struct {
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher

	mu  sync.RWMutex
	key []byte

	done     chan struct{}
	stopOnce sync.Once
}

// NewFileProvider loads the key from path and starts watching the file's
// directory for changes. Close releases the watcher.
func NewFileProvider(path string, logger *zap.Logger) (*FileProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	key, err := readKeyFile(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory, not the file: editors and secret managers replace
	// key files by rename, which drops a direct file watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch key dir: %w", err)
	}

	p := &FileProvider{
		path:    path,
		logger:  logger,
		watcher: watcher,
		key:     key,
		done:    make(chan struct{}),
	}
	go p.loop()
	return p, nil
}

// GetKey returns the most recently loaded key.
func (p *FileProvider) GetKey() ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.key, nil
}

// Close stops watching the key file.
func (p *FileProvider) Close() error {
	p.stopOnce.Do(func() {
		close(p.done)
		_ = p.watcher.Close()
	})
	return nil
}

func (p *FileProvider) loop() {
	for {
		select {
		case <-p.done:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(p.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			p.reload()
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("key file watch error", zap.Error(err))
		}
	}
}

func (p *FileProvider) reload() {
	key, err := readKeyFile(p.path)
	if err != nil {
		// Keep serving the previous key rather than failing live traffic.
		p.logger.Warn("key file reload failed, keeping current key", zap.Error(err))
		return
	}
	p.mu.Lock()
	changed := !SecureCompare(p.key, key)
	p.key = key
	p.mu.Unlock()
	if changed {
		p.logger.Info("encryption key rotated from file", zap.String("path", p.path))
	}
}

func readKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode key file: %w", err)
	}
	if len(key) != KeyLength {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeyLength, len(key), KeyLength)
	}
	return key, nil
}
