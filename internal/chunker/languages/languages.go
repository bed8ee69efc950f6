// Package languages registers the tree-sitter grammars the outliner knows.
package languages

import "readit/internal/chunker"

// Default returns a registry with every supported grammar registered.
func Default() *chunker.Registry {
	r := chunker.NewRegistry()
	RegisterGo(r)
	RegisterPython(r)
	RegisterJavaScript(r)
	RegisterTypeScript(r)
	return r
}
