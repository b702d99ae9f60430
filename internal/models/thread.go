// Package models defines the domain types for threadlinking.
package models

import (
	"slices"
	"sort"
	"time"
)

// Snippet is an immutable, timestamped excerpt of context owned by a thread.
type Snippet struct {
	Content   string    `json:"content"`
	Source    string    `json:"source"`
	URL       string    `json:"url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Tags      []string  `json:"tags,omitempty"`
}

// HasTag reports whether the snippet carries tag (case-insensitive input is
// expected to be lowercased already).
func (s Snippet) HasTag(tag string) bool {
	return slices.Contains(s.Tags, tag)
}

// Thread is a named context container.
type Thread struct {
	Summary       string    `json:"summary"`
	Snippets      []Snippet `json:"snippets"`
	LinkedFiles   []string  `json:"linked_files"`
	ChatURL       string    `json:"chat_url,omitempty"`
	DateCreated   time.Time `json:"date_created"`
	DateModified  time.Time `json:"date_modified"`
	AutoGenerated bool      `json:"auto_generated,omitempty"`
}

// LastActivity returns DateModified, or DateCreated for records written
// before modification times were tracked.
func (t *Thread) LastActivity() time.Time {
	if t.DateModified.IsZero() {
		return t.DateCreated
	}
	return t.DateModified
}

// HasFile reports whether path is linked to the thread.
func (t *Thread) HasFile(path string) bool {
	return slices.Contains(t.LinkedFiles, path)
}

// IsOrphan reports a thread with no summary, no snippets and no files.
func (t *Thread) IsOrphan() bool {
	return t.Summary == "" && len(t.Snippets) == 0 && len(t.LinkedFiles) == 0
}

// Touch bumps the modification time. Timestamps never move backwards, so a
// coarse clock still yields DateModified after DateCreated.
func (t *Thread) Touch(now time.Time) {
	if !now.After(t.DateCreated) {
		now = t.DateCreated.Add(time.Nanosecond)
	}
	if !now.After(t.DateModified) {
		now = t.DateModified.Add(time.Nanosecond)
	}
	t.DateModified = now
}

// Clone returns a deep copy of the thread.
func (t *Thread) Clone() *Thread {
	c := *t
	c.Snippets = make([]Snippet, len(t.Snippets))
	for i, s := range t.Snippets {
		s.Tags = slices.Clone(s.Tags)
		c.Snippets[i] = s
	}
	c.LinkedFiles = slices.Clone(t.LinkedFiles)
	if c.LinkedFiles == nil {
		c.LinkedFiles = []string{}
	}
	return &c
}

// ThreadIndex maps a tag to its thread. It is the entire persisted domain state.
type ThreadIndex map[string]*Thread

// Tags returns all tags in lexical order.
func (idx ThreadIndex) Tags() []string {
	tags := make([]string, 0, len(idx))
	for tag := range idx {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// ThreadsForFile returns the tags of threads linking path, in lexical order.
func (idx ThreadIndex) ThreadsForFile(path string) []string {
	var out []string
	for _, tag := range idx.Tags() {
		if idx[tag].HasFile(path) {
			out = append(out, tag)
		}
	}
	return out
}

// IsLinked reports whether any thread links path.
func (idx ThreadIndex) IsLinked(path string) bool {
	for _, t := range idx {
		if t.HasFile(path) {
			return true
		}
	}
	return false
}

// LinkedFiles returns the set of every linked path.
func (idx ThreadIndex) LinkedFiles() map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range idx {
		for _, f := range t.LinkedFiles {
			out[f] = struct{}{}
		}
	}
	return out
}

// Normalize replaces nil containers left by hand-edited or older documents.
func (idx ThreadIndex) Normalize() ThreadIndex {
	if idx == nil {
		return ThreadIndex{}
	}
	for tag, t := range idx {
		if t == nil {
			delete(idx, tag)
			continue
		}
		if t.Snippets == nil {
			t.Snippets = []Snippet{}
		}
		if t.LinkedFiles == nil {
			t.LinkedFiles = []string{}
		}
	}
	return idx
}
