package store

import "fmt"

// EntityKind is the granularity of a descriptor row.
type EntityKind string

const (
	KindFile     EntityKind = "file"
	KindClass    EntityKind = "class"
	KindFunction EntityKind = "function"
)

// Valid reports whether k is one of the known kinds.
func (k EntityKind) Valid() bool {
	switch k {
	case KindFile, KindClass, KindFunction:
		return true
	}
	return false
}

// WholeProject is the file (and name) of the synthetic project summary row.
const WholeProject = "whole project"

// Descriptor is one indexed entity: a file, or a class or function inside it.
type Descriptor struct {
	ID          int64
	File        string
	ContentHash string
	Kind        EntityKind
	Language    string
	Name        string
	Purpose     string
	Source      string
	Embedding   []float32
}

// Content is the text that gets embedded and returned by search. It is
// always derived from the other fields.
func (d Descriptor) Content() string {
	return fmt.Sprintf("//file %s \n//%s name: %s\n\n// %s\n%s", d.File, d.Kind, d.Name, d.Purpose, d.Source)
}

// Hit is a descriptor returned by a nearest-neighbour query.
type Hit struct {
	Descriptor
	// content as stored; equal to Descriptor.Content() for rows written by this package.
	Text     string
	Distance float64
}
