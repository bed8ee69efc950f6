package languages

import (
	"readit/internal/chunker"

	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

func RegisterTypeScript(r *chunker.Registry) {
	r.Register("typescript", &chunker.LanguageSpec{
		Language: typescript.GetLanguage(),
		Query: `
			(function_declaration name: (identifier) @name) @function
			(class_declaration name: (type_identifier) @name) @class
			(method_definition name: (property_identifier) @name) @function
			(export_statement (function_declaration name: (identifier) @name)) @function
			(export_statement (class_declaration name: (type_identifier) @name)) @class
			(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @function
			(interface_declaration name: (type_identifier) @name) @class
			(type_alias_declaration name: (type_identifier) @name) @class
		`,
		Extensions: []string{"ts", "tsx"},
	})
}
