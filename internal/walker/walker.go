// Package walker enumerates the source files of a project.
package walker

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-enry/go-enry/v2"
	gitignore "github.com/sabhiram/go-gitignore"
)

// SourceFile is one file selected for indexing.
type SourceFile struct {
	// Path is absolute with symlinks resolved; it is the file's identity in
	// the index.
	Path     string
	RelPath  string
	Language string
	Size     int64
}

// Options tunes List.
type Options struct {
	// Extra ignore patterns in gitignore syntax, applied after the defaults
	// and the project's ignore files.
	Ignore []string
	// MaxFileSize skips larger files. Zero selects DefaultMaxFileSize.
	MaxFileSize int64
}

// DefaultMaxFileSize is the largest file considered (1 MB).
const DefaultMaxFileSize = 1 << 20

// IgnoreFileName is the project-level ignore file read next to .gitignore.
const IgnoreFileName = ".readitignore"

// defaultIgnores are gitignore-style patterns that are always applied.
var defaultIgnores = []string{
	".git/",
	".github/",
	".gitlab/",
	".vscode/",
	".idea/",
	".readit/",
	"db/",
	"node_modules/",
	"__pycache__/",
	"dist/",
	"build/",
	"benchmark/",
	"bench/",
	"dockerfiles/",
	"target/",
	"vendor/",
	"*.egg-info/",
	"test*",
	"Test*",
	"*test/",
	"*Test/",
	"setup.py",
	"*.min.js",
}

// languages maps enry language names to the name recorded in the index.
var languages = map[string]string{
	"Python":      "Python",
	"Java":        "Java",
	"JavaScript":  "JavaScript",
	"JSX":         "JavaScript",
	"C":           "C",
	"C++":         "C++",
	"C#":          "C#",
	"Ruby":        "Ruby",
	"Go":          "Go",
	"Swift":       "Swift",
	"Kotlin":      "Kotlin",
	"Rust":        "Rust",
	"TypeScript":  "TypeScript",
	"TSX":         "TypeScript",
	"HTML":        "HTML",
	"CSS":         "CSS",
	"PHP":         "PHP",
	"Perl":        "Perl",
	"R":           "R",
	"Scala":       "Scala",
	"Shell":       "Shell",
	"Lua":         "Lua",
	"MATLAB":      "MATLAB",
	"Groovy":      "Groovy",
	"Objective-C": "Objective-C",
	"Assembly":    "Assembly",
	"Haskell":     "Haskell",
	"Julia":       "Julia",
	"Fortran":     "Fortran",
	"Pascal":      "Pascal",
	"SQL":         "SQL",
	"XML":         "XML",
}

// List walks root and returns the source files worth indexing, sorted by
// path. Directories and files matching the default patterns, the project's
// .gitignore and .readitignore, or opts.Ignore are skipped, as are symlinks,
// empty or oversized files, binaries and files in languages the indexer
// does not describe.
func List(root string, opts Options) ([]SourceFile, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	absRoot, err = filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", absRoot)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	ignore, err := loadIgnore(absRoot, opts.Ignore)
	if err != nil {
		return nil, err
	}

	var files []SourceFile
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries, keep walking
		}
		if path == absRoot {
			return nil
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if ignore.MatchesPath(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
			return nil
		}
		if ignore.MatchesPath(rel) {
			return nil
		}

		if !hasKnownExtension(path) {
			return nil
		}
		fi, err := d.Info()
		if err != nil || fi.Size() == 0 || fi.Size() > maxSize {
			return nil
		}
		lang, ok := detectLanguage(path)
		if !ok {
			return nil
		}

		files = append(files, SourceFile{
			Path:     path,
			RelPath:  rel,
			Language: lang,
			Size:     fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// hasKnownExtension is a cheap filter before the file is read.
func hasKnownExtension(path string) bool {
	for _, l := range enry.GetLanguagesByExtension(path, nil, nil) {
		if _, ok := languages[l]; ok {
			return true
		}
	}
	return false
}

// detectLanguage reads the file to disambiguate shared extensions such as
// .h and .m, and to reject binaries.
func detectLanguage(path string) (string, bool) {
	content, err := os.ReadFile(path)
	if err != nil || enry.IsBinary(content) {
		return "", false
	}
	name, ok := languages[enry.GetLanguage(filepath.Base(path), content)]
	return name, ok
}

func loadIgnore(root string, extra []string) (*gitignore.GitIgnore, error) {
	patterns := append([]string{}, defaultIgnores...)
	for _, name := range []string{".gitignore", IgnoreFileName} {
		lines, err := readIgnoreFile(filepath.Join(root, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		patterns = append(patterns, lines...)
	}
	patterns = append(patterns, extra...)
	return gitignore.CompileIgnoreLines(patterns...), nil
}

func readIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}
