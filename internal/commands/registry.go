// Package commands defines the plugin contract for chat commands and the
// versioned registry that indexes them. The registry is read on every
// inbound message and rebuilt only on reload, so lookups go through an
// atomically swapped snapshot instead of a lock.
package commands

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-wa-gateway/internal/wa"
)

// ExecuteFunc runs one command invocation. Errors are handled at the
// dispatch boundary; returning one never reaches the chat.
type ExecuteFunc func(ctx context.Context, t wa.Transport, inv *Invocation) error

// Descriptor is one registered chat command. Pattern is the primary name;
// Aliases resolve to the same descriptor. React, when set, is an emoji the
// dispatcher attaches to the triggering message before execution.
type Descriptor struct {
	Pattern  string
	Aliases  []string
	Desc     string
	Category string
	React    string
	Execute  ExecuteFunc
}

// Valid reports whether the descriptor can be registered.
func (d *Descriptor) Valid() bool {
	return d != nil && d.Pattern != "" && d.Execute != nil
}

// Source contributes descriptors to the registry; a source may carry one
// command or a whole pack.
type Source interface {
	Commands() []*Descriptor
}

// SourceFunc adapts a plain function to the Source interface.
type SourceFunc func() []*Descriptor

// Commands implements Source.
func (f SourceFunc) Commands() []*Descriptor { return f() }

// index is one immutable registry snapshot.
type index struct {
	version  uint64
	byName   map[string]*Descriptor
	patterns []string
}

// Registry maps command names and aliases to descriptors. Lookups read the
// current snapshot; Load publishes a fully built replacement with a single
// pointer swap, so a concurrent Get sees either the old or the new complete
// set, never a partial one.
type Registry struct {
	cur atomic.Pointer[index]
	log zerolog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	r := &Registry{log: log}
	r.cur.Store(&index{byName: map[string]*Descriptor{}})
	return r
}

// Load builds a new snapshot from the given sources and publishes it,
// replacing whatever was registered before. Invalid descriptors are skipped
// with a warning, never fatal. Returns the number of commands registered
// (aliases not counted).
func (r *Registry) Load(sources ...Source) int {
	prev := r.cur.Load()
	next := &index{
		version: prev.version + 1,
		byName:  make(map[string]*Descriptor),
	}

	count := 0
	for _, src := range sources {
		for _, d := range src.Commands() {
			if !d.Valid() {
				r.log.Warn().
					Str("pattern", patternOf(d)).
					Msg("skipping invalid command descriptor")
				continue
			}
			if _, dup := next.byName[d.Pattern]; dup {
				r.log.Warn().Str("pattern", d.Pattern).Msg("duplicate command pattern, keeping latest")
			} else {
				next.patterns = append(next.patterns, d.Pattern)
				count++
			}
			next.byName[d.Pattern] = d
			for _, a := range d.Aliases {
				if a == "" {
					continue
				}
				next.byName[a] = d
			}
		}
	}
	sort.Strings(next.patterns)

	r.cur.Store(next)
	r.log.Info().Int("commands", count).Uint64("version", next.version).Msg("command registry loaded")
	return count
}

// Get resolves a command name or alias against the current snapshot.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	d, ok := r.cur.Load().byName[name]
	return d, ok
}

// Patterns returns the sorted primary patterns of the current snapshot.
func (r *Registry) Patterns() []string {
	p := r.cur.Load().patterns
	out := make([]string, len(p))
	copy(out, p)
	return out
}

// Version returns the snapshot generation, incremented on every Load.
func (r *Registry) Version() uint64 { return r.cur.Load().version }

func patternOf(d *Descriptor) string {
	if d == nil {
		return ""
	}
	return d.Pattern
}
