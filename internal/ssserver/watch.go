package ssserver

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/dfs/internal/logger"
)

// watchMetadata watches the directory holding the metadata table and
// reloads it whenever the file is written, picking up any change an
// operator makes directly on disk while the server is running. It runs
// until s.shutdown is closed.
func (s *Server) watchMetadata() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("ssserver: metadata watcher unavailable", logger.Err(err))
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(s.Layout.MetadataFile())
	if err := watcher.Add(dir); err != nil {
		logger.Warn("ssserver: failed to watch metadata directory", logger.Err(err))
		return
	}

	target := filepath.Base(s.Layout.MetadataFile())
	for {
		select {
		case <-s.shutdown:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := s.Meta.Reload(); err != nil {
				logger.Warn("ssserver: metadata reload failed", logger.Err(err))
				continue
			}
			logger.Info("ssserver: metadata table reloaded from disk")
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("ssserver: metadata watcher error", logger.Err(err))
		}
	}
}
