package wiscraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient answers queries from a table keyed by window start and class code
type fakeClient struct {
	mu      sync.Mutex
	rows    map[string][]Row
	errs    map[string]error
	calls   []string
	delay   time.Duration
	closed  int
	closeFn func() error
}

func queryKey(start, code string) string { return start + "/" + code }

func newFakeClient() *fakeClient {
	return &fakeClient{rows: map[string][]Row{}, errs: map[string]error{}}
}

func (f *fakeClient) on(start, code string, rows ...Row) *fakeClient {
	f.rows[queryKey(start, code)] = rows
	return f
}

func (f *fakeClient) fail(start, code string, err error) *fakeClient {
	f.errs[queryKey(start, code)] = err
	return f
}

func (f *fakeClient) AdvancedCaseSearch(ctx context.Context, q SearchQuery) ([]Row, error) {
	key := queryKey(q.Window.Start.Format(time.DateOnly), q.ClassCode)

	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if !q.IncludeMissingDOB || !q.IncludeMissingMiddleName || q.AttorneyType != DefaultAttorneyType {
		return nil, fmt.Errorf("unexpected query flags: %+v", q)
	}
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	return f.rows[key], nil
}

func (f *fakeClient) Close() error {
	f.closed++
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}

func row(caseNo string, county int, caption string) Row {
	return Row{"caseNo": caseNo, "countyNo": float64(county), "caption": caption, "filingDate": "2025-01-02"}
}

func codes(cs ...string) []ClassCode {
	out := make([]ClassCode, len(cs))
	for i, c := range cs {
		out[i] = ClassCode{Code: c}
	}
	return out
}

func twoWindowRequest(classCodes ...string) SweepRequest {
	return SweepRequest{
		Start:      date("2025-01-01"),
		End:        date("2025-01-10"),
		ClassCodes: codes(classCodes...),
		SpanDays:   7,
	}
}

func TestSweep_OrderWindowMajor(t *testing.T) {
	client := newFakeClient()
	_, err := Sweep(context.Background(), client, twoWindowRequest("50111", "50101"))
	require.NoError(t, err)

	want := []string{
		"2025-01-01/50111", "2025-01-01/50101",
		"2025-01-08/50111", "2025-01-08/50101",
	}
	if diff := cmp.Diff(want, client.calls); diff != "" {
		t.Errorf("query order mismatch (-want +got):\n%s", diff)
	}
}

func TestSweep_MergesAcrossClassCodes(t *testing.T) {
	client := newFakeClient().
		on("2025-01-01", "50111", row("2025CV000123", 71, "from 50111")).
		on("2025-01-08", "50101", row("2025CV000123", 71, "from 50101"))

	result, err := Sweep(context.Background(), client, twoWindowRequest("50111", "50101"))
	require.NoError(t, err)
	require.Equal(t, 1, result.Cases.Len())

	c, ok := result.Cases.Get(CaseKey{CaseNo: "2025CV000123", CountyNo: 71})
	require.True(t, ok)
	assert.Equal(t, []string{"50101", "50111"}, c.ClassCodes())
	assert.Equal(t, "from 50111", c.Summary.Caption)
	assert.Equal(t, "50111", c.Summary.ClassCode)
}

func TestSweep_FirstWriteWinsWithinWindow(t *testing.T) {
	client := newFakeClient().
		on("2025-01-01", "A", row("1", 1, "first")).
		on("2025-01-01", "B", row("1", 1, "second"))

	result, err := Sweep(context.Background(), client, twoWindowRequest("B", "A"))
	require.NoError(t, err)

	c, _ := result.Cases.Get(CaseKey{CaseNo: "1", CountyNo: 1})
	assert.Equal(t, "second", c.Summary.Caption, "class code B runs first in this request")
}

func TestSweep_SameCaseNoDifferentCounty(t *testing.T) {
	client := newFakeClient().
		on("2025-01-01", "A", row("2025CV1", 1, "county 1"), row("2025CV1", 2, "county 2"))

	result, err := Sweep(context.Background(), client, twoWindowRequest("A"))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Cases.Len())
}

func TestSweep_InsertionOrder(t *testing.T) {
	client := newFakeClient().
		on("2025-01-01", "A", row("c", 1, ""), row("a", 1, "")).
		on("2025-01-01", "B", row("b", 1, ""), row("c", 1, "")).
		on("2025-01-08", "A", row("d", 1, ""), row("a", 1, ""))

	result, err := Sweep(context.Background(), client, twoWindowRequest("A", "B"))
	require.NoError(t, err)

	var got []string
	for _, k := range result.Cases.Keys() {
		got = append(got, k.CaseNo)
	}
	assert.Equal(t, []string{"c", "a", "b", "d"}, got)
}

func TestSweep_DuplicateClassCodeIsIdempotent(t *testing.T) {
	build := func() *fakeClient {
		return newFakeClient().
			on("2025-01-01", "A", row("1", 1, "")).
			on("2025-01-08", "B", row("1", 1, ""), row("2", 1, ""))
	}

	plain, err := Sweep(context.Background(), build(), twoWindowRequest("A", "B"))
	require.NoError(t, err)
	dup, err := Sweep(context.Background(), build(), twoWindowRequest("A", "B", "A"))
	require.NoError(t, err)

	require.Equal(t, plain.Cases.Keys(), dup.Cases.Keys())
	for _, key := range plain.Cases.Keys() {
		p, _ := plain.Cases.Get(key)
		d, _ := dup.Cases.Get(key)
		assert.Equal(t, p.ClassCodes(), d.ClassCodes())
	}
}

func TestSweep_FailFast(t *testing.T) {
	boom := errors.New("status 503")
	client := newFakeClient().
		on("2025-01-01", "A", row("1", 1, "")).
		fail("2025-01-01", "B", boom)

	result, err := Sweep(context.Background(), client, twoWindowRequest("A", "B"))
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, boom)

	var qerr *QueryError
	require.True(t, errors.As(err, &qerr))
	assert.Equal(t, "B", qerr.ClassCode)
	assert.Equal(t, date("2025-01-01"), qerr.Window.Start)
	assert.Len(t, client.calls, 2, "no queries after the failure")
}

func TestSweep_RowErrorFailsPair(t *testing.T) {
	client := newFakeClient().
		on("2025-01-01", "A", row("1", 1, ""), Row{"caseNo": "2", "filingDate": "03/15/2025"})

	_, err := Sweep(context.Background(), client, twoWindowRequest("A"))
	assert.ErrorIs(t, err, ErrDateFormat)
}

func TestSweep_BestEffortSkipsWholePair(t *testing.T) {
	client := newFakeClient().
		on("2025-01-01", "A", row("1", 1, ""), Row{"caption": "no case number"}).
		on("2025-01-01", "B", row("2", 1, "")).
		fail("2025-01-08", "A", errors.New("timeout")).
		on("2025-01-08", "B", row("3", 1, ""))

	req := twoWindowRequest("A", "B")
	req.Policy = BestEffort

	result, err := Sweep(context.Background(), client, req)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Queries)
	require.Len(t, result.Failures, 2)
	assert.ErrorIs(t, result.Failures[0], ErrMissingField)
	assert.Equal(t, "A", result.Failures[1].ClassCode)

	var got []string
	for _, k := range result.Cases.Keys() {
		got = append(got, k.CaseNo)
	}
	assert.Equal(t, []string{"2", "3"}, got, "case 1 shares a pair with the bad row and is dropped")
}

func TestSweep_InvalidArguments(t *testing.T) {
	req := twoWindowRequest("A")
	req.SpanDays = 0
	_, err := Sweep(context.Background(), newFakeClient(), req)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	req = twoWindowRequest("A")
	req.Policy = "retry-forever"
	_, err = Sweep(context.Background(), newFakeClient(), req)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSweep_EmptyRange(t *testing.T) {
	client := newFakeClient()
	req := twoWindowRequest("A")
	req.Start, req.End = req.End, req.Start

	result, err := Sweep(context.Background(), client, req)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Cases.Len())
	assert.Empty(t, client.calls)
}

func TestSweep_ConcurrentMatchesSequential(t *testing.T) {
	build := func() *fakeClient {
		f := newFakeClient()
		f.delay = time.Millisecond
		for _, start := range []string{"2025-01-01", "2025-01-08", "2025-01-15", "2025-01-22", "2025-01-29"} {
			for _, code := range []string{"A", "B", "C"} {
				f.on(start, code,
					row("shared", 1, start+code),
					row(start+code, 1, ""),
				)
			}
		}
		return f
	}
	req := SweepRequest{
		Start:      date("2025-01-01"),
		End:        date("2025-01-31"),
		ClassCodes: codes("A", "B", "C"),
		SpanDays:   7,
	}

	seq, err := Sweep(context.Background(), build(), req)
	require.NoError(t, err)

	req.Concurrency = 4
	conc, err := Sweep(context.Background(), build(), req)
	require.NoError(t, err)

	assert.Equal(t, seq.Cases.Keys(), conc.Cases.Keys())
	shared, _ := conc.Cases.Get(CaseKey{CaseNo: "shared", CountyNo: 1})
	assert.Equal(t, "2025-01-01A", shared.Summary.Caption)
	assert.Equal(t, []string{"A", "B", "C"}, shared.ClassCodes())
	if diff := cmp.Diff(Flatten(seq.Cases), Flatten(conc.Cases)); diff != "" {
		t.Errorf("concurrent sweep differs (-seq +conc):\n%s", diff)
	}
}

func TestSweep_ConcurrentFailFastReportsEarliestPair(t *testing.T) {
	client := newFakeClient().
		fail("2025-01-01", "B", errors.New("first")).
		fail("2025-01-08", "A", errors.New("second"))

	req := twoWindowRequest("A", "B")
	req.Concurrency = 4

	_, err := Sweep(context.Background(), client, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first")
}

func TestSweep_ConcurrentFailFastStopsLaterQueries(t *testing.T) {
	client := newFakeClient().fail("2025-01-01", "A", errors.New("down"))
	client.delay = 5 * time.Millisecond

	req := SweepRequest{
		Start:       date("2025-01-01"),
		End:         date("2025-03-31"),
		ClassCodes:  codes("A", "B", "C"),
		SpanDays:    7,
		Concurrency: 2,
	}
	pairs, err := buildPairs(req)
	require.NoError(t, err)

	_, err = Sweep(context.Background(), client, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Less(t, len(client.calls), len(pairs)/2, "queries kept running after the first failure")
}

func TestSweep_ConcurrentBestEffortRunsEveryPair(t *testing.T) {
	client := newFakeClient().fail("2025-01-01", "A", errors.New("down"))
	req := twoWindowRequest("A", "B")
	req.Policy = BestEffort
	req.Concurrency = 2

	result, err := Sweep(context.Background(), client, req)
	require.NoError(t, err)
	assert.Len(t, result.Failures, 1)
	assert.Len(t, client.calls, 4)
}

func TestFailGate(t *testing.T) {
	g := newFailGate()
	assert.False(t, g.closed(100))

	g.fail(5)
	g.fail(9)
	assert.False(t, g.closed(4))
	assert.False(t, g.closed(5))
	assert.True(t, g.closed(6))

	g.fail(2)
	assert.True(t, g.closed(3))
}

func TestAggregator_ClosesSession(t *testing.T) {
	client := newFakeClient().on("2025-01-01", "A", row("1", 1, ""))
	agg := NewAggregator(func(ctx context.Context) (Session, error) { return client, nil })

	result, err := agg.Run(context.Background(), twoWindowRequest("A"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Cases.Len())
	assert.Equal(t, 1, client.closed)
}

func TestAggregator_ClosesSessionOnFailure(t *testing.T) {
	client := newFakeClient().fail("2025-01-01", "A", errors.New("down"))
	agg := NewAggregator(func(ctx context.Context) (Session, error) { return client, nil })

	_, err := agg.Run(context.Background(), twoWindowRequest("A"))
	require.Error(t, err)
	assert.Equal(t, 1, client.closed)
}

func TestAggregator_CloseErrorSurfaces(t *testing.T) {
	client := newFakeClient()
	client.closeFn = func() error { return errors.New("close failed") }
	agg := NewAggregator(func(ctx context.Context) (Session, error) { return client, nil })

	result, err := agg.Run(context.Background(), twoWindowRequest("A"))
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "close failed")
}

func TestAggregator_InvalidRequestDoesNotOpenSession(t *testing.T) {
	opened := false
	agg := NewAggregator(func(ctx context.Context) (Session, error) {
		opened = true
		return newFakeClient(), nil
	})

	req := twoWindowRequest("A")
	req.SpanDays = 0
	_, err := agg.Run(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.False(t, opened)
}

func TestSweep_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newFakeClient()
	_, err := Sweep(ctx, client, twoWindowRequest("A"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.calls)
}
