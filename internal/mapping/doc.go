// Package mapping declares how an entity type's objects map onto their
// storage entities and compiles that declaration into a bidirectional
// lookup table.
//
// A Spec is written once per entity type, either in Go:
//
//	spec := mapping.Spec{
//		"id":   mapping.Property("id", mapping.Atoi, mapping.Itoa),
//		"name": mapping.Key("name"),
//		"toys": mapping.ObjectArray("toys", mapping.Spec{"label": mapping.Key("title")}),
//	}
//
// or in a YAML/CUE file resolved against a Registry of named transforms.
// Compile turns it into a *Compiled, which repositories own and share across
// requests.
package mapping
