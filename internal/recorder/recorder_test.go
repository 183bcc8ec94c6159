package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redeemly/redeemd/pkg/schema"
)

func TestRecordAppendsFormattedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codes.txt")
	r, err := NewFileRecorder(path, nil)
	if err != nil {
		t.Fatalf("NewFileRecorder returned error: %v", err)
	}
	defer r.Close()

	when := time.Date(2025, time.March, 14, 15, 9, 26, 0, time.UTC)
	r.Record("ABCD-1234-EFGH-5678", schema.OutcomeSuccess, 2, when)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	want := "ABCD-1234-EFGH-5678 | SUCCESS | " + when.Format(time.ANSIC) + " | Worker #2\n"
	if string(data) != want {
		t.Fatalf("unexpected log line:\ngot  %q\nwant %q", data, want)
	}
}

func TestRecordNeverOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codes.txt")

	r, err := NewFileRecorder(path, nil)
	if err != nil {
		t.Fatalf("NewFileRecorder returned error: %v", err)
	}
	r.Record("AAAA-1111-BBBB-2222", schema.OutcomeInvalid, 1, time.Now())
	r.Close()

	// Reopening must append after the existing entry.
	r, err = NewFileRecorder(path, nil)
	if err != nil {
		t.Fatalf("reopen recorder: %v", err)
	}
	r.Record("CCCC-3333-DDDD-4444", schema.OutcomeSuccess, 2, time.Now())
	r.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), data)
	}
	if !strings.HasPrefix(lines[0], "AAAA-1111-BBBB-2222") || !strings.HasPrefix(lines[1], "CCCC-3333-DDDD-4444") {
		t.Fatalf("entries reordered: %q", lines)
	}
}

func TestRecordConcurrentAppendsDoNotInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codes.txt")
	r, err := NewFileRecorder(path, nil)
	if err != nil {
		t.Fatalf("NewFileRecorder returned error: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code := schema.FormatCode(fmt.Sprintf("AAAA1111BBBB%04d", i))
			r.Record(code, schema.OutcomeAlreadyUsed, i%3+1, time.Now())
		}(i)
	}
	wg.Wait()
	r.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != n {
		t.Fatalf("expected %d lines, got %d", n, len(lines))
	}
	for _, line := range lines {
		parts := strings.Split(line, " | ")
		if len(parts) != 4 {
			t.Fatalf("malformed line: %q", line)
		}
		if parts[1] != string(schema.OutcomeAlreadyUsed) {
			t.Fatalf("unexpected status field: %q", line)
		}
		if !strings.HasPrefix(parts[3], "Worker #") {
			t.Fatalf("unexpected worker field: %q", line)
		}
	}
}
