package history

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/convoflow/convoflow/runtime"
)

func TestFileSink_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	defer sink.Close()

	started := time.Now().Add(-time.Minute)
	records := []runtime.HistoryRecord{
		{Flow: "survey", SenderID: "user-1", Channel: "web", Variables: map[string]any{"rating": 5.0}, StartedAt: started, CompletedAt: time.Now()},
		{Flow: "survey", SenderID: "user-2", Channel: "sms", Variables: map[string]any{"rating": 2.0}, StartedAt: started, CompletedAt: time.Now()},
	}
	for _, rec := range records {
		if err := sink.Append(context.Background(), rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var got []runtime.HistoryRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec runtime.HistoryRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		got = append(got, rec)
	}

	if len(got) != 2 {
		t.Fatalf("read %d records, want 2", len(got))
	}
	if got[0].SenderID != "user-1" || got[1].SenderID != "user-2" {
		t.Errorf("records out of order: %+v", got)
	}
	if got[0].Variables["rating"] != 5.0 {
		t.Errorf("variables = %#v", got[0].Variables)
	}
}

func TestFileSink_AppendAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	first, _ := NewFileSink(path)
	first.Append(context.Background(), runtime.HistoryRecord{Flow: "a", SenderID: "u"})
	first.Close()

	second, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	second.Append(context.Background(), runtime.HistoryRecord{Flow: "b", SenderID: "u"})

	raw, _ := os.ReadFile(path)
	lines := 0
	for _, b := range raw {
		if b == '\n' {
			lines++
		}
	}
	if lines != 2 {
		t.Errorf("file holds %d records, want 2 (reopen must append, not truncate)", lines)
	}
}
