// Package kernel holds the domain services: the mutation pipeline, the
// read paths, relationship management and the type descriptor registry.
package kernel

import (
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/cache"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/store"
)

// Core bundles the services the transports talk to. Wiring is explicit:
// main builds one Core and hands it to the HTTP server, nothing reaches
// for globals.
type Core struct {
	Mutator       *Mutator
	Reader        *Reader
	Relationships *Relationships
	Registry      *TypeRegistry
}

// NewCore wires the services over one store and one cache.
func NewCore(st *store.Store, c *cache.ObjectCache) *Core {
	reg := NewTypeRegistry(st)
	return &Core{
		Mutator:       NewMutator(st, c, reg),
		Reader:        NewReader(st, c),
		Relationships: NewRelationships(st),
		Registry:      reg,
	}
}
