package deploykey

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"

	"panelauth/pkg/logging"
)

// EnvVarName is the variable deploy keys are exported under so build
// tooling picks them up from the project's env file.
const EnvVarName = "PANEL_DEPLOY_KEY"

// WriteKeyToEnvFile writes the key into the env file at path, preserving
// every other entry. The file is created when missing.
func WriteKeyToEnvFile(path, key string) error {
	vars, err := godotenv.Read(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read env file %s: %w", path, err)
		}
		vars = map[string]string{}
	}

	vars[EnvVarName] = key
	if err := godotenv.Write(vars, path); err != nil {
		return fmt.Errorf("failed to write env file %s: %w", path, err)
	}
	return nil
}

// ReadKeyFromEnvFile returns the exported key, or "" when the file or the
// variable is absent.
func ReadKeyFromEnvFile(path string) (string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	return vars[EnvVarName], nil
}

// RemoveKeyFromEnvFile deletes the exported variable while leaving the
// rest of the file intact. A missing file is not an error.
func RemoveKeyFromEnvFile(path string) error {
	vars, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	if _, ok := vars[EnvVarName]; !ok {
		return nil
	}

	delete(vars, EnvVarName)
	if err := godotenv.Write(vars, path); err != nil {
		return fmt.Errorf("failed to write env file %s: %w", path, err)
	}
	return nil
}

// EnvFileWatcher reports external edits to the env file's exported key.
// Editors replace files on save, so the watch is on the parent directory.
type EnvFileWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	keys    chan string
	done    chan struct{}
}

// WatchEnvFile starts watching the env file at path. Each external change
// to the exported key is delivered on Keys.
func WatchEnvFile(path string) (*EnvFileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve env file path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create env file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	w := &EnvFileWatcher{
		watcher: watcher,
		path:    abs,
		keys:    make(chan string, 1),
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Keys delivers the key value after each external change. An empty string
// means the variable or the file was removed.
func (w *EnvFileWatcher) Keys() <-chan string {
	return w.keys
}

// Close stops the watcher.
func (w *EnvFileWatcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *EnvFileWatcher) run() {
	var last string
	if key, err := ReadKeyFromEnvFile(w.path); err == nil {
		last = key
	}

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}

			key, err := ReadKeyFromEnvFile(w.path)
			if err != nil {
				logging.Warn("deploykey", "Failed to re-read env file after change: %v", err)
				continue
			}
			if key == last {
				continue
			}
			last = key

			select {
			case w.keys <- key:
			default:
				// Drop when the consumer lags; the next change re-reads anyway.
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("deploykey", "Env file watcher error: %v", err)
		}
	}
}
