// Package store persists the project state document.
package store

import "github.com/planvane/planvane/models"

// ProjectStore is the persistence port for the single project state
// document. One project lives per store; the orchestrator façade is the
// only writer.
type ProjectStore interface {
	// Load reads the persisted state. A missing document yields
	// (nil, nil): that is the first-run signal, not an error.
	Load() (*models.ProjectState, error)

	// Save durably writes the full state document. The write must be
	// atomic with respect to readers of the same path.
	Save(state *models.ProjectState) error

	// Close releases any resources held by the store, such as file
	// locks or database connections.
	Close() error
}
