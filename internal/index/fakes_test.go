package index

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"readit/internal/embedder"
	"readit/internal/llm"
	"readit/internal/logger"
	"readit/internal/store"
	"readit/internal/walker"
)

const testDim = 16

// bagOfWords is a deterministic embedding service: every word increments a
// hashed bucket and the vector is L2-normalized. Inputs longer than limit
// characters are rejected as too long.
type bagOfWords struct {
	model string
	limit int

	mu    sync.Mutex
	calls int
}

func (b *bagOfWords) Model() string { return b.model }

func (b *bagOfWords) Embed(_ context.Context, texts []string, dim int) ([][]float32, int, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if b.limit > 0 && len(text) > b.limit {
			return nil, 0, embedder.ErrContextTooLong
		}
		out[i] = bagVector(text, dim)
	}
	return out, len(texts), nil
}

func bagVector(text string, dim int) []float32 {
	v := make([]float32, dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%uint32(dim)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

// fakeAnalyzer derives the analysis from the file's first line, which the
// tests write as "// purpose: ...". Functions are taken from lines starting
// with "func ".
type fakeAnalyzer struct {
	mu    sync.Mutex
	calls []string
	hints map[string][]string
	fail  map[string]error
}

func (a *fakeAnalyzer) Analyze(_ context.Context, code, language string, hints ...string) (llm.Analysis, int, error) {
	first, _, _ := strings.Cut(code, "\n")
	purpose := strings.TrimSpace(strings.TrimPrefix(first, "// purpose:"))

	a.mu.Lock()
	a.calls = append(a.calls, purpose)
	if a.hints == nil {
		a.hints = map[string][]string{}
	}
	a.hints[purpose] = hints
	err := a.fail[purpose]
	a.mu.Unlock()
	if err != nil {
		return llm.Analysis{}, 0, err
	}

	an := llm.Analysis{Purpose: purpose, Classes: []llm.Entity{}}
	for _, line := range strings.Split(code, "\n") {
		if rest, ok := strings.CutPrefix(line, "func "); ok {
			name, _, _ := strings.Cut(rest, "(")
			an.Functions = append(an.Functions, llm.Entity{
				Name:       name,
				Purpose:    "does " + name,
				SourceCode: line,
			})
		}
	}
	return an, 5, nil
}

func (a *fakeAnalyzer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type fakeSummarizer struct {
	mu      sync.Mutex
	digests []string
}

func (s *fakeSummarizer) Summarize(_ context.Context, digest string) (string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digests = append(s.digests, digest)
	return fmt.Sprintf("project with %d files", strings.Count(digest, "\n")+1), 3, nil
}

// countingStore records descriptor writes. Replace fails with failErr for
// the file named by failFile.
type countingStore struct {
	store.Store
	mu       sync.Mutex
	writes   int
	failFile string
	failErr  error
}

func (c *countingStore) bump() {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
}

func (c *countingStore) Insert(ctx context.Context, d store.Descriptor) error {
	c.bump()
	return c.Store.Insert(ctx, d)
}

func (c *countingStore) DeleteWhere(ctx context.Context, p store.Predicate) (int64, error) {
	c.bump()
	return c.Store.DeleteWhere(ctx, p)
}

func (c *countingStore) Replace(ctx context.Context, file string, ds []store.Descriptor) error {
	c.bump()
	c.mu.Lock()
	fail := c.failFile == file
	c.mu.Unlock()
	if fail {
		return c.failErr
	}
	return c.Store.Replace(ctx, file, ds)
}

func (c *countingStore) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

type harness struct {
	t          *testing.T
	root       string
	store      *countingStore
	service    *bagOfWords
	client     *embedder.Client
	analyzer   *fakeAnalyzer
	summarizer *fakeSummarizer
	indexer    *Indexer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "index.db"), testDim)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	h := &harness{
		t:          t,
		root:       filepath.Join(dir, "src"),
		store:      &countingStore{Store: s},
		service:    &bagOfWords{model: "bag-v1"},
		analyzer:   &fakeAnalyzer{},
		summarizer: &fakeSummarizer{},
	}
	require.NoError(t, os.MkdirAll(h.root, 0o755))
	h.client = embedder.NewClient(h.service, testDim, 256, logger.Discard())
	h.indexer = New(h.store, h.client, h.analyzer, h.summarizer, Config{Workers: 2, Logger: logger.Discard()})
	return h
}

// sequential makes file jobs run one at a time in input order.
func (h *harness) sequential() {
	h.indexer = New(h.store, h.client, h.analyzer, h.summarizer, Config{Workers: 1, Logger: logger.Discard()})
}

// write creates or overwrites a Go source file and returns it as a walker
// entry.
func (h *harness) write(name, purpose string, funcs ...string) walker.SourceFile {
	h.t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "// purpose: %s\npackage demo\n", purpose)
	for _, f := range funcs {
		fmt.Fprintf(&b, "\nfunc %s() {}\n", f)
	}
	path := filepath.Join(h.root, name)
	require.NoError(h.t, os.WriteFile(path, []byte(b.String()), 0o644))
	return walker.SourceFile{Path: path, RelPath: name, Language: "Go", Size: int64(b.Len())}
}

func (h *harness) rowsOf(path string) []store.Descriptor {
	h.t.Helper()
	rows, err := h.store.SelectWhere(context.Background(), store.Eq(store.ColFile, path), nil, 0)
	require.NoError(h.t, err)
	return rows
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}

func llmAnalysis(purpose string, classes, funcs []string) llm.Analysis {
	a := llm.Analysis{Purpose: purpose}
	for _, c := range classes {
		a.Classes = append(a.Classes, llm.Entity{Name: c, Purpose: "class " + c, SourceCode: "src of " + c})
	}
	for _, f := range funcs {
		a.Functions = append(a.Functions, llm.Entity{Name: f, Purpose: "func " + f, SourceCode: "src of " + f})
	}
	return a
}
