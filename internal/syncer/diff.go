package syncer

import (
	"sort"
	"time"

	"github.com/ziadkadry99/docqa/internal/chunker"
)

// Snapshot maps a source path to the modification time its records were
// indexed with.
type Snapshot map[string]time.Time

// SnapshotOf derives the snapshot from the metadata of every stored record.
// Records of one path share a modification time, so any record will do.
func SnapshotOf(metas []chunker.Metadata) Snapshot {
	s := make(Snapshot)
	for _, m := range metas {
		if _, ok := s[m.SourcePath]; !ok {
			s[m.SourcePath] = m.LastModified
		}
	}
	return s
}

// Plan lists the paths to act on, each sorted.
type Plan struct {
	New      []string
	Modified []string
	Deleted  []string
}

// Empty reports whether the plan changes nothing.
func (p Plan) Empty() bool {
	return len(p.New) == 0 && len(p.Modified) == 0 && len(p.Deleted) == 0
}

// Diff compares the files on disk with the stored snapshot. A file counts as
// modified only when its disk mtime is strictly newer than the stored one;
// an older mtime (for example a restored backup) leaves it unchanged.
func Diff(current, stored Snapshot) Plan {
	var p Plan
	for path, mtime := range current {
		indexed, ok := stored[path]
		switch {
		case !ok:
			p.New = append(p.New, path)
		case mtime.After(indexed):
			p.Modified = append(p.Modified, path)
		}
	}
	for path := range stored {
		if _, ok := current[path]; !ok {
			p.Deleted = append(p.Deleted, path)
		}
	}
	sort.Strings(p.New)
	sort.Strings(p.Modified)
	sort.Strings(p.Deleted)
	return p
}
