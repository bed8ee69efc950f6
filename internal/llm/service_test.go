package llm

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChat struct {
	replies  []string
	err      error
	calls    [][]Message
	jsonMode []bool
}

func (f *fakeChat) Model() string { return "fake" }

func (f *fakeChat) Complete(_ context.Context, messages []Message, jsonMode bool) (string, int, error) {
	f.calls = append(f.calls, messages)
	f.jsonMode = append(f.jsonMode, jsonMode)
	if f.err != nil {
		return "", 0, f.err
	}
	i := min(len(f.calls)-1, len(f.replies)-1)
	return f.replies[i], 10, nil
}

func (f *fakeChat) Stream(_ context.Context, messages []Message, w io.Writer) (int, error) {
	f.calls = append(f.calls, messages)
	for _, r := range f.replies {
		if _, err := io.WriteString(w, r); err != nil {
			return 0, err
		}
	}
	return 42, nil
}

const goodReply = `{
  "purpose": "serves HTTP",
  "classes": [{"name": "Server", "source_code": "type Server struct{}", "purpose": "holds state"}],
  "functions": [{"name": "Start", "source_code": "func Start() {}", "purpose": "starts it"}]
}`

func TestAnalyze(t *testing.T) {
	chat := &fakeChat{replies: []string{goodReply}}
	svc := NewService(chat, chat, "French", nil)

	a, tokens, err := svc.Analyze(context.Background(), "package main", "Go", "Server", "Start")
	require.NoError(t, err)
	assert.Equal(t, 10, tokens)
	assert.Equal(t, "serves HTTP", a.Purpose)
	require.Len(t, a.Classes, 1)
	assert.Equal(t, Entity{Name: "Server", Purpose: "holds state", SourceCode: "type Server struct{}"}, a.Classes[0])
	require.Len(t, a.Functions, 1)

	require.Len(t, chat.calls, 1)
	assert.True(t, chat.jsonMode[0])
	prompt := chat.calls[0][1].Content
	assert.Contains(t, prompt, "I have the following code in Go:")
	assert.Contains(t, prompt, "package main")
	assert.Contains(t, prompt, "Server, Start")
	assert.True(t, strings.HasSuffix(prompt, "Make sure all the output contents are in French."))
}

func TestAnalyze_RetriesMalformedReplies(t *testing.T) {
	chat := &fakeChat{replies: []string{"not json", `{"purpose": "x"}`, "```json\n" + goodReply + "\n```"}}
	svc := NewService(chat, chat, "", nil)

	a, tokens, err := svc.Analyze(context.Background(), "code", "Go")
	require.NoError(t, err)
	assert.Equal(t, "serves HTTP", a.Purpose)
	assert.Equal(t, 30, tokens)
	assert.Len(t, chat.calls, 3)
}

func TestAnalyze_GivesUpAfterThreeAttempts(t *testing.T) {
	chat := &fakeChat{replies: []string{"nope"}}
	svc := NewService(chat, chat, "", nil)

	_, _, err := svc.Analyze(context.Background(), "code", "Go")
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Len(t, chat.calls, MaxAnalyzeAttempts)
}

func TestAnalyze_TransportErrorIsNotRetried(t *testing.T) {
	boom := errors.New("connection refused")
	chat := &fakeChat{err: boom}
	svc := NewService(chat, chat, "", nil)

	_, _, err := svc.Analyze(context.Background(), "code", "Go")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrMalformedResponse)
	assert.Len(t, chat.calls, 1)
}

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		wantErr bool
	}{
		{name: "plain", reply: goodReply},
		{name: "fenced", reply: "```json\n" + goodReply + "\n```"},
		{name: "bare fence", reply: "```\n" + goodReply + "```"},
		{name: "empty lists", reply: `{"purpose": "p", "classes": [], "functions": []}`},
		{name: "invalid json", reply: `{"purpose": `, wantErr: true},
		{name: "missing purpose", reply: `{"classes": [], "functions": []}`, wantErr: true},
		{name: "missing functions", reply: `{"purpose": "p", "classes": []}`, wantErr: true},
		{name: "entity without source", reply: `{"purpose": "p", "classes": [{"name": "A", "purpose": "a"}], "functions": []}`, wantErr: true},
		{name: "entity with empty name", reply: `{"purpose": "p", "classes": [], "functions": [{"name": " ", "purpose": "a", "source_code": ""}]}`, wantErr: true},
		{name: "wrong type", reply: `{"purpose": 3, "classes": [], "functions": []}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAnalysis(tt.reply)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedResponse)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	chat := &fakeChat{replies: []string{"  A tool.  \n"}}
	svc := NewService(chat, chat, "English", nil)

	summary, tokens, err := svc.Summarize(context.Background(), "/p/a.go: does a\n/p/b.go: does b")
	require.NoError(t, err)
	assert.Equal(t, "A tool.", summary)
	assert.Equal(t, 10, tokens)
	assert.False(t, chat.jsonMode[0])
	assert.Contains(t, chat.calls[0][1].Content, "/p/a.go: does a\n/p/b.go: does b")
}

func TestRespond(t *testing.T) {
	analyse := &fakeChat{}
	chat := &fakeChat{replies: []string{"It ", "works."}}
	svc := NewService(analyse, chat, "English", nil)

	var buf bytes.Buffer
	tokens, err := svc.Respond(context.Background(), "how?", []string{"text one", "text two"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, "It works.", buf.String())
	assert.Equal(t, 42, tokens)
	assert.Empty(t, analyse.calls)

	prompt := chat.calls[0][1].Content
	assert.Contains(t, prompt, "how?")
	assert.Contains(t, prompt, "text one")
	assert.Contains(t, prompt, "text two")
}
