package main

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/mewdb/mew/internal/registry"
)

// schemaFile is the minimal TOML shape cmd/mew accepts for a type
// registry when it needs one to resolve journal entries (replay has
// no way to recover type/edge-type names from raw ids alone). The
// engine's own DDL/schema language is an external collaborator
// (SPEC_FULL.md §1) and out of scope here; this is operational tooling
// only, not a substitute for it.
type schemaFile struct {
	Types     []schemaType     `toml:"types"`
	EdgeTypes []schemaEdgeType `toml:"edge_types"`
}

type schemaType struct {
	ID   int32  `toml:"id"`
	Name string `toml:"name"`
}

type schemaEdgeType struct {
	ID     int32               `toml:"id"`
	Name   string              `toml:"name"`
	Params []schemaEdgeTypeArg `toml:"params"`
}

type schemaEdgeTypeArg struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
	Max  int    `toml:"max"`
}

// loadRegistry reads a schema TOML file and builds the registry.Registry
// replay resolves SPAWN/LINK records against.
func loadRegistry(path string) (*registry.Registry, error) {
	var sf schemaFile
	if _, err := toml.DecodeFile(path, &sf); err != nil {
		return nil, fmt.Errorf("schema: decoding %s: %w", path, err)
	}

	defs := registry.Definitions{}
	for _, t := range sf.Types {
		defs.Types = append(defs.Types, &registry.TypeDef{
			ID:    t.ID,
			Name:  t.Name,
			Attrs: registry.NewAttrMap(),
		})
	}
	for _, et := range sf.EdgeTypes {
		params := make([]registry.ParamDescriptor, 0, len(et.Params))
		for _, p := range et.Params {
			params = append(params, registry.ParamDescriptor{
				Name:           p.Name,
				TypeConstraint: p.Type,
				Max:            p.Max,
			})
		}
		defs.EdgeTypes = append(defs.EdgeTypes, &registry.EdgeTypeDef{
			ID:     et.ID,
			Name:   et.Name,
			Params: params,
			Attrs:  registry.NewAttrMap(),
		})
	}

	return registry.Build(defs)
}
