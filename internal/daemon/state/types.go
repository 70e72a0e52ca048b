// Package state holds the daemon's registry of open projects.
package state

import (
	"github.com/grovetools/buildhub/internal/daemon/broadcast"
	"github.com/grovetools/buildhub/internal/daemon/fswatch"
	"github.com/grovetools/buildhub/internal/daemon/project"
	"github.com/grovetools/buildhub/internal/daemon/watch"
)

// Entry is everything the daemon owns for one open project root.
type Entry struct {
	Root      string
	Project   *project.Project
	Hub       *broadcast.Hub
	Scheduler *watch.Scheduler
	Watcher   *fswatch.Watcher

	// clients counts registrations per editor process.
	clients map[int]int
	count   int
}

// Clients returns the number of registrations holding the project open.
func (e *Entry) Clients() int {
	return e.count
}

// UpdateType defines what kind of change happened.
type UpdateType string

const (
	UpdateOpened  UpdateType = "opened"
	UpdateClosed  UpdateType = "closed"
	UpdateClients UpdateType = "clients"
)

// Update describes a change to the registry.
type Update struct {
	Type    UpdateType `json:"type"`
	Root    string     `json:"root"`
	Clients int        `json:"clients"`
}
