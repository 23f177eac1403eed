package walker

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/rnpdno/internal/model"
	"github.com/ppiankov/rnpdno/internal/registry"
)

// scriptedFetcher serves pages keyed by cursor and fails the first n calls for a cursor
type scriptedFetcher struct {
	pages    map[string]*model.Page
	failures map[string][]error
	calls    []string
}

func (f *scriptedFetcher) FetchPage(_ context.Context, _ model.FilterSpec, _ model.StateCode, cursor string) (*model.Page, error) {
	f.calls = append(f.calls, cursor)
	if errs := f.failures[cursor]; len(errs) > 0 {
		f.failures[cursor] = errs[1:]
		return nil, errs[0]
	}
	page, ok := f.pages[cursor]
	if !ok {
		return nil, &registry.RegistryError{Message: "unknown cursor " + cursor}
	}
	return page, nil
}

func records(state model.StateCode, ids ...int) []model.Record {
	out := make([]model.Record, len(ids))
	for i, id := range ids {
		out[i] = model.Record{ID: strconv.Itoa(id), State: state, Attributes: map[string]any{"n": id}}
	}
	return out
}

func threePages() map[string]*model.Page {
	return map[string]*model.Page{
		"":  {Records: records("1", 1, 2), HasMore: true, Next: "2", Total: -1},
		"2": {Records: records("1", 3, 4), HasMore: true, Next: "3", Total: -1},
		"3": {Records: records("1", 5), Total: -1},
	}
}

func noSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var delays []time.Duration
	orig := sleepFunc
	sleepFunc = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	t.Cleanup(func() { sleepFunc = orig })
	return &delays
}

var state1 = model.State{Code: "1", Name: "AGUASCALIENTES"}

func TestWalk_ExactFetchesInOrder(t *testing.T) {
	noSleep(t)
	f := &scriptedFetcher{pages: threePages()}
	w := New(f, Config{MaxAttempts: 3, BaseDelay: time.Millisecond})

	res := w.Walk(context.Background(), model.FilterSpec{}, state1)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if diff := cmp.Diff([]string{"", "2", "3"}, f.calls); diff != "" {
		t.Errorf("fetch sequence mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(records("1", 1, 2, 3, 4, 5), res.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if res.Pages != 3 || res.Retries != 0 {
		t.Errorf("expected 3 pages and 0 retries, got %d and %d", res.Pages, res.Retries)
	}
}

func TestWalk_RetryOnPageTwoMatchesCleanRun(t *testing.T) {
	delays := noSleep(t)
	clean := New(&scriptedFetcher{pages: threePages()}, Config{MaxAttempts: 3, BaseDelay: time.Millisecond})
	want := clean.Walk(context.Background(), model.FilterSpec{}, state1)

	flaky := &scriptedFetcher{
		pages: threePages(),
		failures: map[string][]error{
			"2": {&registry.TransportError{Op: "fetch page", StatusCode: 503, Err: errors.New("503 Service Unavailable")}},
		},
	}
	w := New(flaky, Config{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second})
	got := w.Walk(context.Background(), model.FilterSpec{}, state1)

	if got.Err != nil {
		t.Fatalf("unexpected error: %v", got.Err)
	}
	if diff := cmp.Diff(want.Records, got.Records); diff != "" {
		t.Errorf("retried walk differs from clean walk (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"", "2", "2", "3"}, flaky.calls); diff != "" {
		t.Errorf("fetch sequence mismatch (-want +got):\n%s", diff)
	}
	if got.Retries != 1 {
		t.Errorf("expected 1 retry, got %d", got.Retries)
	}
	if diff := cmp.Diff([]time.Duration{100 * time.Millisecond}, *delays); diff != "" {
		t.Errorf("delay mismatch (-want +got):\n%s", diff)
	}
}

func TestWalk_NonTransientFailsWithoutRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"decode", &registry.DecodeError{Err: errors.New("unexpected EOF")}},
		{"registry", &registry.RegistryError{Message: "cursor invalido"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delays := noSleep(t)
			f := &scriptedFetcher{pages: threePages(), failures: map[string][]error{"2": {tt.err}}}
			w := New(f, Config{MaxAttempts: 5, BaseDelay: time.Millisecond})

			res := w.Walk(context.Background(), model.FilterSpec{}, state1)
			var swe *StateWalkError
			if !errors.As(res.Err, &swe) {
				t.Fatalf("expected StateWalkError, got %v", res.Err)
			}
			if swe.Page != 2 || swe.Attempts != 1 {
				t.Errorf("expected failure on page 2 after 1 attempt, got page %d attempts %d", swe.Page, swe.Attempts)
			}
			if !errors.Is(res.Err, tt.err) {
				t.Errorf("expected cause to be preserved, got %v", res.Err)
			}
			if res.Records != nil {
				t.Errorf("failed walk must contribute no records, got %d", len(res.Records))
			}
			if res.Pages != 1 {
				t.Errorf("expected 1 page before failure, got %d", res.Pages)
			}
			if len(*delays) != 0 {
				t.Errorf("expected no retry delays, got %v", *delays)
			}
		})
	}
}

func TestWalk_RetriesExhausted(t *testing.T) {
	delays := noSleep(t)
	transient := &registry.TransportError{Op: "fetch page", Err: errors.New("connection reset")}
	f := &scriptedFetcher{
		pages:    threePages(),
		failures: map[string][]error{"": {transient, transient, transient, transient, transient}},
	}
	w := New(f, Config{MaxAttempts: 4, BaseDelay: time.Second, MaxDelay: 3 * time.Second})

	res := w.Walk(context.Background(), model.FilterSpec{}, state1)
	var swe *StateWalkError
	if !errors.As(res.Err, &swe) {
		t.Fatalf("expected StateWalkError, got %v", res.Err)
	}
	if swe.Attempts != 4 || len(f.calls) != 4 {
		t.Errorf("expected 4 attempts, got %d (calls %d)", swe.Attempts, len(f.calls))
	}
	if !registry.IsTransient(res.Err) {
		t.Errorf("last error should be the transport error, got %v", res.Err)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	if diff := cmp.Diff(want, *delays); diff != "" {
		t.Errorf("backoff mismatch (-want +got):\n%s", diff)
	}
	if res.Records != nil || res.Retries != 3 {
		t.Errorf("expected no records and 3 retries, got %v and %d", res.Records, res.Retries)
	}
}

func TestWalk_EmptyFirstPage(t *testing.T) {
	f := &scriptedFetcher{pages: map[string]*model.Page{"": {Records: []model.Record{}, Total: 0}}}
	res := New(f, Config{}).Walk(context.Background(), model.FilterSpec{}, state1)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Records == nil || len(res.Records) != 0 || res.Pages != 1 {
		t.Errorf("expected an empty non-nil record set over 1 page, got %v over %d", res.Records, res.Pages)
	}
}

func TestWalk_CursorMustAdvance(t *testing.T) {
	f := &scriptedFetcher{pages: map[string]*model.Page{
		"":  {Records: records("1", 1), HasMore: true, Next: "a"},
		"a": {Records: records("1", 2), HasMore: true, Next: "a"},
	}}
	res := New(f, Config{MaxAttempts: 3}).Walk(context.Background(), model.FilterSpec{}, state1)
	var re *registry.RegistryError
	if !errors.As(res.Err, &re) {
		t.Fatalf("expected RegistryError for a stuck cursor, got %v", res.Err)
	}
	if len(f.calls) != 2 {
		t.Errorf("expected 2 fetches, got %d", len(f.calls))
	}
}

func TestWalk_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	orig := sleepFunc
	sleepFunc = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	t.Cleanup(func() { sleepFunc = orig })

	f := &scriptedFetcher{
		pages:    threePages(),
		failures: map[string][]error{"": {&registry.TransportError{Op: "fetch page", Err: errors.New("timeout")}}},
	}
	res := New(f, Config{MaxAttempts: 3, BaseDelay: time.Hour}).Walk(ctx, model.FilterSpec{}, state1)
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", res.Err)
	}
	if len(f.calls) != 1 {
		t.Errorf("expected no fetch after cancellation, got %d calls", len(f.calls))
	}
}

func TestPages_LazyAndRestartable(t *testing.T) {
	f := &scriptedFetcher{pages: threePages()}
	w := New(f, Config{MaxAttempts: 1})
	seq := w.Pages(context.Background(), model.FilterSpec{}, "1")

	for page, err := range seq {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(page.Records) != 2 {
			t.Errorf("unexpected first page %+v", page)
		}
		break
	}
	if len(f.calls) != 1 {
		t.Errorf("breaking after the first page should fetch once, got %d", len(f.calls))
	}

	n := 0
	for _, err := range seq {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		n++
	}
	if n != 3 {
		t.Errorf("expected a full second pass of 3 pages, got %d", n)
	}
}

func TestPages_YieldsTerminalError(t *testing.T) {
	f := &scriptedFetcher{pages: threePages(), failures: map[string][]error{"3": {&registry.DecodeError{Err: errors.New("bad")}}}}
	var pages int
	var last error
	for page, err := range New(f, Config{}).Pages(context.Background(), model.FilterSpec{}, "1") {
		if err != nil {
			last = err
			continue
		}
		if page != nil {
			pages++
		}
	}
	if pages != 2 {
		t.Errorf("expected 2 pages before the error, got %d", pages)
	}
	var swe *StateWalkError
	if !errors.As(last, &swe) || swe.Page != 3 {
		t.Errorf("expected StateWalkError on page 3, got %v", last)
	}
}

func TestResult_Outcome(t *testing.T) {
	res := Result{State: state1, Records: records("1", 1, 2), Pages: 1, Retries: 2}
	out := res.Outcome()
	if !out.Succeeded() || out.Records != 2 || out.Retries != 2 {
		t.Errorf("unexpected outcome %+v", out)
	}

	failed := Result{State: state1, Err: errors.New("boom")}.Outcome()
	if failed.Succeeded() || failed.Error != "boom" {
		t.Errorf("unexpected failed outcome %+v", failed)
	}
}
