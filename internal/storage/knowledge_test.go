package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestImportExportKnowledge(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	input := `[
		{"query": "who is ada lovelace", "response": "[Wikipedia Result]\nAda Lovelace was a mathematician.", "timestamp": 1700000000000},
		{"query": "broken", "response": "Error fetching from Wikipedia: timeout", "timestamp": 1700000001000},
		{"query": "What   is Go", "response": "[DuckDuckGo Result]\nGo is a language.", "timestamp": 1700000002000}
	]`
	imported, skipped, err := ImportKnowledge(ctx, c, strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(imported) != 2 || skipped != 1 {
		t.Fatalf("imported %d, skipped %d", len(imported), skipped)
	}
	if _, err := c.Lookup(ctx, "what is go"); err != nil {
		t.Errorf("normalized key missing: %v", err)
	}

	var buf bytes.Buffer
	n, err := ExportKnowledge(ctx, c, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("exported %d", n)
	}
	var records []KnowledgeRecord
	if err := json.Unmarshal(buf.Bytes(), &records); err != nil {
		t.Fatal(err)
	}
	if records[0].Query != "who is ada lovelace" || records[0].Timestamp != 1700000000000 {
		t.Errorf("first record = %+v", records[0])
	}
}

func TestImportKnowledgeFile(t *testing.T) {
	c, _ := newTestCache(t)
	path := filepath.Join(t.TempDir(), "kb.json")
	if err := os.WriteFile(path, []byte(`[{"query":"q","response":"a long enough answer","timestamp":0}]`), 0644); err != nil {
		t.Fatal(err)
	}
	imported, _, err := ImportKnowledgeFile(context.Background(), c, path)
	if err != nil {
		t.Fatal(err)
	}
	if len(imported) != 1 || imported[0].CreatedAt.IsZero() {
		t.Errorf("imported = %+v", imported)
	}
	if _, _, err := ImportKnowledgeFile(context.Background(), c, filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestImportKnowledge_invalidJSON(t *testing.T) {
	c, _ := newTestCache(t)
	if _, _, err := ImportKnowledge(context.Background(), c, strings.NewReader("{not json")); err == nil {
		t.Error("expected decode error")
	}
}
