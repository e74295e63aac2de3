package nstrie

import (
	"strings"

	"github.com/marmos91/dfs/internal/dferrors"
	"github.com/marmos91/dfs/internal/logger"
)

// FolderUpdate is one file whose folder field changed as a side effect of
// a folder rename, paired with the storage server that needs to be told.
type FolderUpdate struct {
	Filename string
	Folder   string
	SSIndex  int
}

// AddFolder registers a new folder path with its owner. It refuses a
// duplicate name.
func (idx *Index) AddFolder(name, owner string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.folders[name]; exists {
		return dferrors.Conflict(name, "folder already exists")
	}
	idx.folders[name] = owner
	return nil
}

// hasPrefixSegment reports whether folder is exactly prefix, or prefix
// followed by a '/' segment boundary.
func hasPrefixSegment(folder, prefix string) bool {
	if folder == prefix {
		return true
	}
	return strings.HasPrefix(folder, prefix+"/")
}

// MoveFolder renames src to dst. It verifies owner owns src, refuses if
// dst already exists, then walks every file in the trie: any file whose
// folder has src as a segment-aligned prefix is rewritten to the same
// path under dst. It returns the set of (filename, new folder, ss_index)
// updates the caller must propagate to the owning storage servers.
func (idx *Index) MoveFolder(src, dst, owner string) ([]FolderUpdate, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	folderOwner, exists := idx.folders[src]
	if !exists {
		return nil, dferrors.NotFound(src)
	}
	if folderOwner != owner {
		return nil, dferrors.Denied(src)
	}
	if _, exists := idx.folders[dst]; exists {
		return nil, dferrors.Conflict(dst, "folder already exists")
	}

	delete(idx.folders, src)
	idx.folders[dst] = folderOwner

	var updates []FolderUpdate
	for _, rec := range idx.allRecordsLocked() {
		if rec.Folder == "" || !hasPrefixSegment(rec.Folder, src) {
			continue
		}
		rec.Folder = dst + strings.TrimPrefix(rec.Folder, src)
		updates = append(updates, FolderUpdate{Filename: rec.Filename, Folder: rec.Folder, SSIndex: rec.SSIndex})
	}

	// Any nested folder registry entries under src move along with it.
	for name, o := range idx.folders {
		if name == dst || !hasPrefixSegment(name, src) {
			continue
		}
		newName := dst + strings.TrimPrefix(name, src)
		delete(idx.folders, name)
		idx.folders[newName] = o
	}

	logger.Info("trie: folder moved", logger.Folder(src), logger.Owner(owner))
	return updates, nil
}

// SetFileFolder moves a single file into folder. It returns the file's
// ss_index on success, or a not-found/denied error.
func (idx *Index) SetFileFolder(filename, folder, requester string) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	n := idx.lookupLocked(filename)
	if n == nil || n.record == nil {
		return 0, dferrors.NotFound(filename)
	}
	if n.record.Owner != requester {
		return 0, dferrors.Denied(filename)
	}
	n.record.Folder = folder
	return n.record.SSIndex, nil
}

// ViewFolder lists the immediate children of folder: subfolders one
// segment below it, and files whose folder field equals it exactly.
func (idx *Index) ViewFolder(folder, user string, showAll bool) (folders []string, files []*Record) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	prefix := folder + "/"
	seen := make(map[string]bool)
	for name := range idx.folders {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := name[len(prefix):]
		if strings.Contains(rest, "/") {
			continue
		}
		if !seen[name] {
			seen[name] = true
			folders = append(folders, name)
		}
	}

	for _, rec := range idx.allRecordsLocked() {
		if rec.Folder != folder {
			continue
		}
		if canSee(rec, user, showAll) {
			files = append(files, rec.clone())
		}
	}
	return folders, files
}

// FolderExists reports whether name is a registered folder.
func (idx *Index) FolderExists(name string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	_, ok := idx.folders[name]
	return ok
}
