package syncer

import (
	"fmt"
	"time"
)

// Report summarizes one synchronization. Counts are the sizes of the detected
// sets, so a file that failed to load or store is still counted; it is also
// listed in Failed.
type Report struct {
	Added     int
	Modified  int
	Deleted   int
	Unchanged int
	Failed    []FileFailure
	Duration  time.Duration
}

// FileFailure records a file that could not be indexed during a sync. It is
// retried on the next one.
type FileFailure struct {
	Path string
	Err  error
}

// Changed reports whether the sync touched the index.
func (r *Report) Changed() bool {
	return r.Added+r.Modified+r.Deleted > 0
}

func (r *Report) String() string {
	s := fmt.Sprintf("%d added, %d modified, %d deleted", r.Added, r.Modified, r.Deleted)
	if len(r.Failed) > 0 {
		s += fmt.Sprintf(", %d failed", len(r.Failed))
	}
	return s
}
