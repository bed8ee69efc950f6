package llm

import (
	"strings"
	"text/template"
)

const analyseSystem = "As a professional programming expert, analyze the given source code file. " +
	"Your goal is to thoroughly understand the content and purpose of the code. Your response should be in JSON format."

const assistantSystem = "You are a helpful assistant."

var analyseTmpl = template.Must(template.New("analyse").Funcs(template.FuncMap{"join": strings.Join}).Parse(`I have the following code in {{.Language}}:

` + "```" + `
{{.Code}}
` + "```" + `

Could you please explain what this code does, including the purpose of class and key part of the code?
{{- if .Hints}}

The file defines the following classes and functions: {{join .Hints ", "}}.
{{- end}}

Make sure the JSON output is structured as follows:

` + "```" + `
{
  "purpose": "string", // what this code is doing
  "classes": [
    {
      "name": "string", // this class's name
      "source_code": "string", // this class's raw content
      "purpose": "string" // what this class is doing
    }
  ],
  "functions": [
    {
      "name": "string", // this function's name
      "source_code": "string", // this function's raw content
      "purpose": "string" // what this function is doing
    }
  ]
}
` + "```" + `

This JSON output will help us understand the structure and functionality of the source code file in a clear and concise manner, So PLEASE give me a JSON data follow above structure.`))

var askTmpl = template.Must(template.New("ask").Parse(`Here is the user's query:

` + "```" + `
{{.Query}}
` + "```" + `

Understand the user's query and explain with the related description and source code:
{{range .Texts}}
{{.}}
{{end}}
No need to give the whole source code back.`))

var summarizeTmpl = template.Must(template.New("summarize").Parse(`Here are the source files of a project, one per line, each followed by a description of its purpose:

` + "```" + `
{{.Digest}}
` + "```" + `

Summarize what this project does as a whole: its goal, its main components and how they fit together.`))

type analyseData struct {
	Language string
	Code     string
	Hints    []string
}

type askData struct {
	Query string
	Texts []string
}

type summarizeData struct {
	Digest string
}

// render executes t and appends the output-language instruction.
func render(t *template.Template, data any, language string) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	b.WriteString("\n\nMake sure all the output contents are in ")
	b.WriteString(language)
	b.WriteString(".")
	return b.String(), nil
}
