// Package gallery keeps the in-memory list of published works. This prototype
// has no backend publish pipeline; the gallery exists only for the lifetime of
// the process.
package gallery

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Work is one published entry.
type Work struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Author      string  `json:"author"`
	AudioURL    string  `json:"audioUrl"`
	Duration    float64 `json:"duration"`
	Visibility  string  `json:"visibility"`
	Likes       int     `json:"likes"`
	Timestamp   int64   `json:"timestamp"`
	CoverColor  string  `json:"coverColor"`
}

var coverColors = []string{"#6366f1", "#8b5cf6", "#ec4899", "#f59e0b", "#10b981", "#06b6d4"}

// Gallery is a process-local collection of published works.
type Gallery struct {
	mu    sync.RWMutex
	works []Work
	clock func() time.Time
}

func New() *Gallery {
	return &Gallery{clock: time.Now}
}

// Publish adds a work, assigning an id, timestamp and a rotating cover color.
func (g *Gallery) Publish(work Work) Work {
	g.mu.Lock()
	defer g.mu.Unlock()

	work.ID = uuid.NewString()
	work.Timestamp = g.clock().UnixMilli()
	work.CoverColor = coverColors[len(g.works)%len(coverColors)]
	if work.Visibility == "" {
		work.Visibility = "public"
	}
	if work.Author == "" {
		work.Author = "You"
	}
	g.works = append(g.works, work)
	return work
}

// List returns the works newest-first.
func (g *Gallery) List() []Work {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Work, len(g.works))
	copy(out, g.works)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out
}
