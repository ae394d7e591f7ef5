package transcript

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWriterCreatesFile(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "logs")

	w, err := NewWriter(tmpDir, "abc")
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, filepath.Join(tmpDir, "oracle-abc.jsonl"), w.Path())
	_, err = os.Stat(w.Path())
	assert.NoError(t, err)

	_, err = NewWriter(tmpDir, "")
	assert.Error(t, err)
}

func TestAppendAndRead(t *testing.T) {
	w, err := NewWriter(t.TempDir(), "s1")
	require.NoError(t, err)
	defer w.Close()

	ctx := context.Background()
	require.NoError(t, w.Append(ctx, &Entry{Kind: KindRequest, Stage: "directory", Content: "KNOWLEDGE: ..."}))
	require.NoError(t, w.Append(ctx, &Entry{Kind: KindResponse, Stage: "directory", Content: "[1]", PromptTokens: 100, CompletionTokens: 2}))

	entries, err := ReadEntries(w.Path())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, KindRequest, entries[0].Kind)
	assert.Equal(t, 1, entries[0].Seq)
	assert.Equal(t, "s1", entries[0].SessionID)
	assert.False(t, entries[0].Timestamp.IsZero())
	assert.Equal(t, 2, entries[1].Seq)
	assert.Equal(t, 100, entries[1].PromptTokens)
}

func TestAppendAfterCloseFails(t *testing.T) {
	w, err := NewWriter(t.TempDir(), "s2")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "double close is harmless")

	assert.Error(t, w.Append(context.Background(), &Entry{Kind: KindRequest}))
}

func TestAppendHonoursCancelledContext(t *testing.T) {
	w, err := NewWriter(t.TempDir(), "s3")
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Append(ctx, &Entry{Kind: KindRequest}), context.Canceled)
}

func TestConcurrentAppendsKeepLinesIntact(t *testing.T) {
	w, err := NewWriter(t.TempDir(), "s4")
	require.NoError(t, err)
	defer w.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Append(context.Background(), &Entry{Kind: KindResponse, Content: strings.Repeat("x", 512)})
		}()
	}
	wg.Wait()

	entries, err := ReadEntries(w.Path())
	require.NoError(t, err)
	assert.Len(t, entries, 20)

	seqs := map[int]bool{}
	for _, e := range entries {
		seqs[e.Seq] = true
	}
	assert.Len(t, seqs, 20)
}

func TestReopenAppends(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "same")
	require.NoError(t, err)
	require.NoError(t, w.Append(context.Background(), &Entry{Kind: KindRequest, Content: "one"}))
	require.NoError(t, w.Close())

	w, err = NewWriter(dir, "same")
	require.NoError(t, err)
	require.NoError(t, w.Append(context.Background(), &Entry{Kind: KindRequest, Content: "two"}))
	require.NoError(t, w.Close())

	entries, err := ReadEntries(filepath.Join(dir, FileName("same")))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	files, err := List(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, []Entry{
		{Kind: KindRequest, Stage: "boolean", Content: "prompt"},
		{Kind: KindResponse, Stage: "boolean", Content: "[A increase]"},
	}))
	out := buf.String()
	assert.Contains(t, out, "LLM REQUEST:\nprompt")
	assert.Contains(t, out, "LLM RESPONSE:\n[A increase]")
}

func TestReadEntriesRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oracle-bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{not json}\n"), 0644))
	_, err := ReadEntries(path)
	assert.Error(t, err)
}
