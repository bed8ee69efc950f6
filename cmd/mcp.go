package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"readit/internal/rag"
	"readit/internal/store"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server exposing codebase search tools",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	engine, err := a.engine()
	if err != nil {
		return err
	}

	s := mcpserver.NewMCPServer("readit", "1.0.0", mcpserver.WithToolCapabilities(false))

	s.AddTool(searchCodebaseTool(a.cfg.SearchK), makeSearchHandler(engine))
	s.AddTool(getFileDescriptionTool(), makeFileDescriptionHandler(engine, a.root))
	s.AddTool(getProjectSummaryTool(), makeSummaryHandler(engine))
	s.AddTool(listIndexedFilesTool(), makeListFilesHandler(engine, a.root))

	a.log.Info("mcp server listening on stdio", "root", a.root)
	return mcpserver.ServeStdio(s)
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// --- Tool schema builders ---

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func searchCodebaseTool(maxK int) mcp.Tool {
	return mcp.NewTool("search_codebase",
		mcp.WithDescription("Semantically search the indexed codebase. Returns the descriptions and source of the files, classes and functions nearest to the query."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language query about the codebase"),
		),
		mcp.WithNumber("k",
			mcp.Description(fmt.Sprintf("Maximum number of results to return (default and upper bound %d)", maxK)),
		),
	)
}

func getFileDescriptionTool() mcp.Tool {
	return mcp.NewTool("get_file_description",
		mcp.WithDescription("Get the generated description of one indexed file and of the classes and functions it defines."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File path, absolute or relative to the project root"),
		),
	)
}

func getProjectSummaryTool() mcp.Tool {
	return mcp.NewTool("get_project_summary",
		mcp.WithDescription("Get the whole-project summary synthesized from every file description during indexing."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
	)
}

func listIndexedFilesTool() mcp.Tool {
	return mcp.NewTool("list_indexed_files",
		mcp.WithDescription("List all files in the index with their language and purpose."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("language",
			mcp.Description("Optional language filter (e.g. 'go', 'python'). Case-insensitive."),
		),
	)
}

// --- Handler factories ---

func makeSearchHandler(engine *rag.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}

		hits, _, err := engine.SearchHits(ctx, query)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if k := req.GetInt("k", 0); k > 0 && k < len(hits) {
			hits = hits[:k]
		}

		return mcp.NewToolResultText(formatSearchResults(query, hits)), nil
	}
}

func makeFileDescriptionHandler(engine *rag.Engine, root string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := req.GetString("path", "")
		if path == "" {
			return mcp.NewToolResultError("path is required"), nil
		}

		rows, err := engine.Describe(ctx, resolvePath(root, path))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("describe failed: %v", err)), nil
		}
		if len(rows) == 0 {
			return mcp.NewToolResultError(fmt.Sprintf("file %q not found in index; call list_indexed_files to see available paths", path)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "## %s\n\n**Language:** %s\n\n", relPath(root, rows[0].File), rows[0].Language)
		for _, r := range rows {
			if r.Kind == store.KindFile {
				fmt.Fprintf(&sb, "%s\n\n", r.Purpose)
				continue
			}
			fmt.Fprintf(&sb, "- **%s** `%s`: %s\n", r.Kind, r.Name, r.Purpose)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func makeSummaryHandler(engine *rag.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		summary, ok, err := engine.Summary(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read summary failed: %v", err)), nil
		}
		if !ok {
			return mcp.NewToolResultText("No project summary available yet. Run 'readit index' to generate one."), nil
		}
		return mcp.NewToolResultText(summary), nil
	}
}

func makeListFilesHandler(engine *rag.Engine, root string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		langFilter := strings.ToLower(req.GetString("language", ""))

		files, err := engine.Files(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list files failed: %v", err)), nil
		}

		var filtered []store.Descriptor
		for _, f := range files {
			if langFilter == "" || strings.ToLower(f.Language) == langFilter {
				filtered = append(filtered, f)
			}
		}

		var sb strings.Builder
		if langFilter != "" {
			fmt.Fprintf(&sb, "## Indexed files (%d, language: %s)\n\n", len(filtered), langFilter)
		} else {
			fmt.Fprintf(&sb, "## Indexed files (%d)\n\n", len(filtered))
		}

		for _, f := range filtered {
			fmt.Fprintf(&sb, "- **%s** (%s): %s\n", relPath(root, f.File), f.Language, snippet(f.Purpose, 120))
		}

		return mcp.NewToolResultText(sb.String()), nil
	}
}

// --- Formatting helpers ---

func formatSearchResults(query string, hits []store.Hit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No results found for query: %q", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search results for %q (%d)\n\n", query, len(hits))

	for i, h := range hits {
		fmt.Fprintf(&sb, "### Result %d: `%s`\n\n", i+1, h.File)
		fmt.Fprintf(&sb, "**Kind:** %s  \n**Name:** %s  \n**Language:** %s  \n**Distance:** %.4f\n\n",
			h.Kind, h.Name, h.Language, h.Distance)
		fmt.Fprintf(&sb, "%s\n\n", h.Purpose)
		if h.Source != "" {
			fmt.Fprintf(&sb, "```%s\n%s\n```\n\n", strings.ToLower(h.Language), h.Source)
		}
	}

	return sb.String()
}

// resolvePath maps a user-supplied path to the absolute, symlink-resolved
// form files are indexed under.
func resolvePath(root, path string) string {
	if path == store.WholeProject {
		return path
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}

func relPath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}

func snippet(s string, max int) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[:i]
	}
	if r := []rune(s); len(r) > max {
		return string(r[:max]) + "..."
	}
	if s == "" {
		return "(no description)"
	}
	return s
}
