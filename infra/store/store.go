// Package store persists fleet snapshots. Backends register themselves by
// name and are built from configuration with New.
package store

import (
	"errors"
	"time"

	"github.com/kilianp07/robofleet/core/factory"
	"github.com/kilianp07/robofleet/core/fleet"
)

// ErrNoSnapshot is returned by Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot stored")

// Store is a closable snapshot store.
type Store interface {
	fleet.SnapshotStore
	Close() error
}

// Info describes a stored snapshot.
type Info struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Time      float64   `json:"time"`
	Robots    int       `json:"robots"`
	SavedAt   time.Time `json:"saved_at"`
}

var registry = factory.NewRegistry[Store]()

// Register adds a store backend.
func Register(name string, f factory.Factory[Store]) error {
	return registry.Register(name, f)
}

// New opens the store described by cfg.
func New(cfg factory.ModuleConfig) (Store, error) {
	return registry.Create(cfg)
}

// Backends lists the registered backends.
func Backends() []string { return registry.Names() }

type pathConf struct {
	Path string `json:"path"`
	// Keep bounds the number of snapshots kept by history-aware backends.
	Keep int `json:"keep"`
}

func init() {
	_ = Register("jsonfile", func(conf map[string]any) (Store, error) {
		var c pathConf
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewJSONFileStore(c.Path)
	})
	_ = Register("sqlite", func(conf map[string]any) (Store, error) {
		var c pathConf
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		s, err := NewSQLiteStore(c.Path)
		if err != nil {
			return nil, err
		}
		s.Keep = c.Keep
		return s, nil
	})
}
