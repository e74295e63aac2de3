package nsserver

import (
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dfs/internal/logger"
)

// refreshAll implements the metadata refresh protocol (§4.6): snapshot
// (filename, ss_index) pairs under the trie lock, release it, then for
// each entry round-trip an internal_get_metadata request under that SS's
// session lock and patch the trie afterward. Lookups fan out concurrently
// via errgroup since each round-trip is an independent network call; the
// trie is only re-locked briefly per patch, never across I/O.
func (s *Server) refreshAll(filenames []string) {
	if len(filenames) == 0 {
		return
	}

	snapshot := s.Trie.Snapshot()
	wanted := make(map[string]bool, len(filenames))
	for _, f := range filenames {
		wanted[f] = true
	}

	var g errgroup.Group
	for _, entry := range snapshot {
		if !wanted[entry.Filename] {
			continue
		}
		filename, ssIndex := entry.Filename, entry.SSIndex
		g.Go(func() error {
			m, err := s.ssGetMetadata(ssIndex, filename)
			if err != nil {
				logger.Debug("nsserver: metadata refresh failed", logger.Filename(filename), logger.Err(err))
				return nil
			}
			if err := s.Trie.ApplyRefresh(filename, m); err != nil {
				logger.Debug("nsserver: metadata refresh apply failed", logger.Filename(filename), logger.Err(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}
