package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redeemly/redeemd/pkg/schema"
)

type fakeExtractor struct {
	mu      sync.Mutex
	results []extractResult
	calls   int
}

type extractResult struct {
	code  schema.Code
	found bool
	err   error
}

func (f *fakeExtractor) Extract(ctx context.Context, payload []byte) (schema.Code, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.results[f.calls%len(f.results)]
	f.calls++
	return r.code, r.found, r.err
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSubmitter struct {
	mu      sync.Mutex
	outcome schema.Outcome
	codes   []schema.Code
}

func (f *fakeSubmitter) Do(ctx context.Context, code schema.Code) (schema.Outcome, int, error) {
	if ctx.Err() != nil {
		return "", 0, ctx.Err()
	}
	f.mu.Lock()
	f.codes = append(f.codes, code)
	f.mu.Unlock()
	return f.outcome, 1, nil
}

func (f *fakeSubmitter) submitted() []schema.Code {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]schema.Code(nil), f.codes...)
}

type recordedOutcome struct {
	code     schema.Code
	outcome  schema.Outcome
	workerID int
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []recordedOutcome
}

func (f *fakeRecorder) Record(code schema.Code, outcome schema.Outcome, workerID int, when time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, recordedOutcome{code, outcome, workerID})
}

func (f *fakeRecorder) recorded() []recordedOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedOutcome(nil), f.entries...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestPipelineEndToEnd(t *testing.T) {
	extractor := &fakeExtractor{results: []extractResult{
		{code: "ABCD-1234-EFGH-5678", found: true},
	}}
	submitter := &fakeSubmitter{outcome: schema.OutcomeSuccess}
	rec := &fakeRecorder{}

	var pubMu sync.Mutex
	var published []schema.RedemptionDone
	publish := func(evt schema.RedemptionDone) {
		pubMu.Lock()
		published = append(published, evt)
		pubMu.Unlock()
	}

	p := New(extractor, submitter, rec, publish, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	p.Enqueue(NewImageTask([]byte("image-bytes"), "test-channel", time.Now()))

	waitFor(t, func() bool { return len(rec.recorded()) == 1 })
	cancel()
	<-done

	if got := submitter.submitted(); len(got) != 1 || got[0] != "ABCD-1234-EFGH-5678" {
		t.Fatalf("unexpected submissions: %v", got)
	}

	entries := rec.recorded()
	if entries[0].code != "ABCD-1234-EFGH-5678" {
		t.Fatalf("recorded wrong code: %s", entries[0].code)
	}
	valid := false
	for _, o := range schema.Outcomes() {
		if entries[0].outcome == o {
			valid = true
		}
	}
	if !valid {
		t.Fatalf("recorded status %q not in outcome set", entries[0].outcome)
	}

	pubMu.Lock()
	defer pubMu.Unlock()
	if len(published) != 1 || published[0].Code != "ABCD-1234-EFGH-5678" || published[0].WorkerID != 1 {
		t.Fatalf("unexpected published events: %+v", published)
	}
}

func TestPipelineNoCodeMeansNoSubmission(t *testing.T) {
	extractor := &fakeExtractor{results: []extractResult{{found: false}}}
	submitter := &fakeSubmitter{outcome: schema.OutcomeSuccess}
	rec := &fakeRecorder{}

	p := New(extractor, submitter, rec, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	p.Enqueue(NewImageTask([]byte("no code here"), "test-channel", time.Now()))

	waitFor(t, func() bool { return extractor.callCount() == 1 })
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if got := submitter.submitted(); len(got) != 0 {
		t.Fatalf("expected no submissions, got %v", got)
	}
	if got := rec.recorded(); len(got) != 0 {
		t.Fatalf("expected no records, got %v", got)
	}
}

func TestPipelineSurvivesEngineError(t *testing.T) {
	extractor := &fakeExtractor{results: []extractResult{
		{err: errors.New("engine unavailable")},
		{code: "AAAA-BBBB-CCCC-DDDD", found: true},
	}}
	submitter := &fakeSubmitter{outcome: schema.OutcomeInvalid}
	rec := &fakeRecorder{}

	p := New(extractor, submitter, rec, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	p.Enqueue(NewImageTask([]byte("first"), "chan", time.Now()))
	p.Enqueue(NewImageTask([]byte("second"), "chan", time.Now()))

	waitFor(t, func() bool { return len(rec.recorded()) == 1 })
	cancel()
	<-done

	entries := rec.recorded()
	if entries[0].code != "AAAA-BBBB-CCCC-DDDD" || entries[0].outcome != schema.OutcomeInvalid {
		t.Fatalf("unexpected record after engine error: %+v", entries[0])
	}
	if extractor.callCount() != 2 {
		t.Fatalf("recognition stage stopped after engine error: %d calls", extractor.callCount())
	}
}
