package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ErrMalformedResponse is returned when the model's analysis is not valid
// JSON of the expected shape after every attempt.
var ErrMalformedResponse = errors.New("malformed model response")

// MaxAnalyzeAttempts bounds how often a malformed analysis is re-requested.
const MaxAnalyzeAttempts = 3

// Entity is a class or function described by the analysis model.
type Entity struct {
	Name       string
	Purpose    string
	SourceCode string
}

// Analysis is the model's description of one source file.
type Analysis struct {
	Purpose   string
	Classes   []Entity
	Functions []Entity
}

// Service renders prompts and interprets replies for the indexer and the
// retrieval engine.
type Service struct {
	analyse  ChatModel
	chat     ChatModel
	language string
	log      *slog.Logger
}

// NewService uses analyse for file analysis and summaries and chat for
// answers. language is the natural language every reply is requested in.
func NewService(analyse, chat ChatModel, language string, log *slog.Logger) *Service {
	if language == "" {
		language = "English"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{analyse: analyse, chat: chat, language: language, log: log}
}

// Analyze asks the model to describe code written in the given programming
// language. hints are entity names already known from parsing the file.
// Malformed replies are retried up to MaxAnalyzeAttempts times in total;
// tokens spent on every attempt are counted.
func (s *Service) Analyze(ctx context.Context, code, language string, hints ...string) (Analysis, int, error) {
	prompt, err := render(analyseTmpl, analyseData{Language: language, Code: code, Hints: hints}, s.language)
	if err != nil {
		return Analysis{}, 0, fmt.Errorf("render analysis prompt: %w", err)
	}
	messages := []Message{
		{Role: RoleSystem, Content: analyseSystem},
		{Role: RoleUser, Content: prompt},
	}

	tokens := 0
	var lastErr error
	for attempt := 1; attempt <= MaxAnalyzeAttempts; attempt++ {
		reply, n, err := s.analyse.Complete(ctx, messages, true)
		tokens += n
		if err != nil {
			return Analysis{}, tokens, err
		}
		a, err := ParseAnalysis(reply)
		if err == nil {
			return a, tokens, nil
		}
		lastErr = err
		s.log.Warn("malformed analysis reply", "attempt", attempt, "error", err)
	}
	return Analysis{}, tokens, fmt.Errorf("after %d attempts: %w", MaxAnalyzeAttempts, lastErr)
}

// Summarize condenses a digest of "path: purpose" lines into a project
// summary.
func (s *Service) Summarize(ctx context.Context, digest string) (string, int, error) {
	prompt, err := render(summarizeTmpl, summarizeData{Digest: digest}, s.language)
	if err != nil {
		return "", 0, fmt.Errorf("render summary prompt: %w", err)
	}
	reply, tokens, err := s.analyse.Complete(ctx, []Message{
		{Role: RoleSystem, Content: assistantSystem},
		{Role: RoleUser, Content: prompt},
	}, false)
	if err != nil {
		return "", tokens, err
	}
	return strings.TrimSpace(reply), tokens, nil
}

// Respond streams an answer to query grounded on the retrieved texts.
func (s *Service) Respond(ctx context.Context, query string, texts []string, w io.Writer) (int, error) {
	prompt, err := render(askTmpl, askData{Query: query, Texts: texts}, s.language)
	if err != nil {
		return 0, fmt.Errorf("render answer prompt: %w", err)
	}
	return s.chat.Stream(ctx, []Message{
		{Role: RoleSystem, Content: assistantSystem},
		{Role: RoleUser, Content: prompt},
	}, w)
}

type wireEntity struct {
	Name       *string `json:"name"`
	SourceCode *string `json:"source_code"`
	Purpose    *string `json:"purpose"`
}

type wireAnalysis struct {
	Purpose   *string       `json:"purpose"`
	Classes   *[]wireEntity `json:"classes"`
	Functions *[]wireEntity `json:"functions"`
}

// ParseAnalysis decodes a model reply, tolerating a surrounding Markdown
// code fence. Every key of the expected shape must be present.
func ParseAnalysis(reply string) (Analysis, error) {
	var w wireAnalysis
	if err := json.Unmarshal([]byte(stripFence(reply)), &w); err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if w.Purpose == nil {
		return Analysis{}, fmt.Errorf("%w: missing purpose", ErrMalformedResponse)
	}
	if w.Classes == nil || w.Functions == nil {
		return Analysis{}, fmt.Errorf("%w: missing classes or functions", ErrMalformedResponse)
	}

	a := Analysis{Purpose: *w.Purpose}
	var err error
	if a.Classes, err = entities("classes", *w.Classes); err != nil {
		return Analysis{}, err
	}
	if a.Functions, err = entities("functions", *w.Functions); err != nil {
		return Analysis{}, err
	}
	return a, nil
}

func entities(key string, in []wireEntity) ([]Entity, error) {
	out := make([]Entity, 0, len(in))
	for i, e := range in {
		if e.Name == nil || e.Purpose == nil || e.SourceCode == nil {
			return nil, fmt.Errorf("%w: %s[%d] lacks name, purpose or source_code", ErrMalformedResponse, key, i)
		}
		if strings.TrimSpace(*e.Name) == "" {
			return nil, fmt.Errorf("%w: %s[%d] has an empty name", ErrMalformedResponse, key, i)
		}
		out = append(out, Entity{Name: *e.Name, Purpose: *e.Purpose, SourceCode: *e.SourceCode})
	}
	return out, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
