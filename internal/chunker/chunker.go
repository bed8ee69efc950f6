// Package chunker extracts an outline of the classes and functions defined
// in a source file using tree-sitter grammars. The indexer uses the outline
// to recover the exact source text of entities named by the analysis model.
package chunker

import (
	"context"
	"fmt"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
)

// SymbolKind is the coarse kind of an outlined definition.
type SymbolKind string

const (
	SymbolClass    SymbolKind = "class"
	SymbolFunction SymbolKind = "function"
)

// Symbol is one definition found in a source file.
type Symbol struct {
	Name      string
	Kind      SymbolKind
	StartLine int
	EndLine   int
	Source    string
}

// Outliner parses source files and lists their definitions.
type Outliner struct {
	registry *Registry
}

// NewOutliner creates an outliner backed by the given registry.
func NewOutliner(r *Registry) *Outliner {
	return &Outliner{registry: r}
}

// Supports reports whether a grammar is registered for path.
func (o *Outliner) Supports(path string) bool {
	spec, _ := o.registry.Lookup(path)
	return spec != nil
}

// Outline parses src and returns its definitions ordered by position, outer
// definitions before the ones nested in them. If no grammar is registered
// for the file it returns nil.
func (o *Outliner) Outline(ctx context.Context, path string, src []byte) ([]Symbol, error) {
	spec, lang := o.registry.Lookup(path)
	if spec == nil {
		return nil, nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(spec.Language)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	q, err := sitter.NewQuery([]byte(spec.Query), spec.Language)
	if err != nil {
		return nil, fmt.Errorf("compile query for %s: %w", lang, err)
	}
	defer q.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	var captures []capture
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		var node *sitter.Node
		var kind SymbolKind
		var name string
		for _, c := range m.Captures {
			switch q.CaptureNameForId(c.Index) {
			case "class":
				node, kind = c.Node, SymbolClass
			case "function":
				node, kind = c.Node, SymbolFunction
			case "name":
				name = c.Node.Content(src)
			}
		}
		if node == nil || name == "" {
			continue
		}
		captures = append(captures, capture{
			name:      name,
			kind:      kind,
			startLine: int(node.StartPoint().Row) + 1,
			endLine:   int(node.EndPoint().Row) + 1,
			startByte: node.StartByte(),
			endByte:   node.EndByte(),
		})
	}

	captures = dedup(captures)

	symbols := make([]Symbol, 0, len(captures))
	for _, c := range captures {
		symbols = append(symbols, Symbol{
			Name:      c.name,
			Kind:      c.kind,
			StartLine: c.startLine,
			EndLine:   c.endLine,
			Source:    string(src[c.startByte:c.endByte]),
		})
	}
	return symbols, nil
}

// Find returns the first symbol called name, preferring one of the given
// kind.
func Find(symbols []Symbol, name string, kind SymbolKind) (Symbol, bool) {
	var fallback *Symbol
	for i := range symbols {
		if symbols[i].Name != name {
			continue
		}
		if symbols[i].Kind == kind {
			return symbols[i], true
		}
		if fallback == nil {
			fallback = &symbols[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return Symbol{}, false
}

// dedup orders captures by start byte, larger first, and drops a capture
// that names the same definition as an enclosing one (an exported function
// matched both bare and inside its export statement). Genuinely nested
// definitions such as methods inside a class are kept.
func dedup(caps []capture) []capture {
	sort.SliceStable(caps, func(i, j int) bool {
		if caps[i].startByte != caps[j].startByte {
			return caps[i].startByte < caps[j].startByte
		}
		return (caps[i].endByte - caps[i].startByte) > (caps[j].endByte - caps[j].startByte)
	})

	var result []capture
	for _, c := range caps {
		dup := false
		for _, r := range result {
			if r.name == c.name && r.startByte <= c.startByte && c.endByte <= r.endByte {
				dup = true
				break
			}
		}
		if !dup {
			result = append(result, c)
		}
	}
	return result
}

type capture struct {
	name      string
	kind      SymbolKind
	startLine int
	endLine   int
	startByte uint32
	endByte   uint32
}
