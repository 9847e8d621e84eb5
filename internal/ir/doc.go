// Package ir provides the dynamic value model shared by all entitymap packages.
//
// Object-space and entity-space records are plain Document maps. Their values
// are drawn from a small set of shapes:
//   - nil (a present-but-null field; an absent key means "undefined")
//   - bool, string, any Go numeric type, time.Time
//   - slices (usually []any) and map[string]any
//   - opaque driver values such as bson ObjectIDs
//
// The helpers in this package give those shapes the semantics the
// translation core relies on: structural equality that ignores key order,
// ordering across numeric types, deep copies, and canonical JSON for error
// payloads and golden files.
//
// This package imports nothing internal. Every other internal package may
// import ir.
package ir
