package models

import "time"

// PendingFile is a file edited but not yet linked to any thread.
type PendingFile struct {
	Path         string    `json:"path"`
	FirstSeen    time.Time `json:"first_seen"`
	LastModified time.Time `json:"last_modified"`
	Count        int       `json:"count"`
}

// PendingState is the persisted pending-files document.
type PendingState struct {
	Tracked []PendingFile `json:"tracked"`
}

// Find returns the index of path in the tracked list, or -1.
func (s PendingState) Find(path string) int {
	for i, f := range s.Tracked {
		if f.Path == path {
			return i
		}
	}
	return -1
}
