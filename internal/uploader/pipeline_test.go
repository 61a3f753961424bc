package uploader

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adaletdata/uploader/internal/publisher/memory"
)

type fakeSource struct {
	records []Record
	errs    map[int]error // error injected at this fetch index
	next    int
	onNext  func()
}

func (s *fakeSource) Next(_ context.Context) (Record, error) {
	if s.onNext != nil {
		s.onNext()
	}
	idx := s.next
	if err, ok := s.errs[idx]; ok {
		s.next++
		return Record{}, err
	}
	if idx >= len(s.records) {
		return Record{}, ErrSourceExhausted
	}
	s.next++
	return s.records[idx], nil
}

type fakeStore struct {
	existing map[string]bool
	putErrs  map[string][]error // consumed per identity, then success
	puts     map[string]int
	stored   []Record
	closed   bool
	probeErr error
	onPut    func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		existing: make(map[string]bool),
		putErrs:  make(map[string][]error),
		puts:     make(map[string]int),
	}
}

func (s *fakeStore) Exists(_ context.Context, identity string) (bool, error) {
	if s.probeErr != nil {
		return false, s.probeErr
	}
	return s.existing[identity], nil
}

func (s *fakeStore) Put(_ context.Context, record Record) error {
	if s.onPut != nil {
		s.onPut()
	}
	s.puts[record.Identity]++
	if errs := s.putErrs[record.Identity]; len(errs) > 0 {
		err := errs[0]
		s.putErrs[record.Identity] = errs[1:]
		return err
	}
	s.existing[record.Identity] = true
	s.stored = append(s.stored, record)
	return nil
}

func (s *fakeStore) Close() { s.closed = true }

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeIDs struct{ id string }

func (g *fakeIDs) NewID() (string, error) { return g.id, nil }

func record(identity string) Record {
	return Record{
		Identity: identity,
		Decision: Decision{ID: identity, IcerikHam: "karar metni " + identity},
	}
}

func newTestPipeline(source Source, store Store, cfg Config, pub Publisher) *Pipeline {
	retry := NewExponentialRetryPolicy(3, time.Millisecond, 2*time.Millisecond)
	return New(source, store, retry, pub, &fakeClock{now: time.Unix(1700000000, 0).UTC()}, &fakeIDs{id: "run-1"}, cfg, zap.NewNop())
}

func requireAccounting(t *testing.T, res Result) {
	t.Helper()
	require.Equal(t, res.Fetched, res.Persisted+res.SkippedDuplicate+res.Failed,
		"accounting invariant violated: %+v", res)
}

func TestPipelineRun_PersistsUpToLimit(t *testing.T) {
	t.Parallel()

	source := &fakeSource{records: []Record{
		record("1"), record("2"), record("3"), record("4"), record("5"),
	}}
	store := newFakeStore()

	res, err := newTestPipeline(source, store, Config{FailureThreshold: 5}, nil).
		Run(context.Background(), Query{Term: "tapu iptali", Limit: 3})
	require.NoError(t, err)

	require.Equal(t, StateCompleted, res.State)
	require.Equal(t, 3, res.Persisted)
	require.Equal(t, 3, res.Fetched)
	require.Len(t, store.stored, 3)
	require.True(t, store.closed)
	require.Equal(t, "run-1", res.RunID)
	requireAccounting(t, res)

	// The limit stopped consumption; the last two records were never pulled.
	require.Equal(t, 3, source.next)
}

func TestPipelineRun_InvalidLimit(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	res, err := newTestPipeline(&fakeSource{}, store, Config{}, nil).
		Run(context.Background(), Query{Term: "tapu iptali", Limit: 0})

	require.ErrorIs(t, err, ErrInvalidQuery)
	require.Equal(t, StateAborted, res.State)
	require.Zero(t, res.Fetched)
	require.True(t, store.closed)
}

func TestPipelineRun_SkipsDuplicatesWithinRun(t *testing.T) {
	t.Parallel()

	source := &fakeSource{records: []Record{
		record("1"), record("2"), record("1"), record("3"),
	}}
	store := newFakeStore()

	res, err := newTestPipeline(source, store, Config{FailureThreshold: 5}, nil).
		Run(context.Background(), Query{Term: "boşanma", Limit: 10})
	require.NoError(t, err)

	require.Equal(t, 3, res.Persisted)
	require.Equal(t, 1, res.SkippedDuplicate)
	require.Equal(t, 4, res.Fetched)
	require.Equal(t, 1, store.puts["1"], "duplicate must not reach the backend")
	requireAccounting(t, res)
}

func TestPipelineRun_LimitOneStopsBeforeRemainingRecords(t *testing.T) {
	t.Parallel()

	source := &fakeSource{records: []Record{
		record("1"), record("1"), record("2"),
	}}
	store := newFakeStore()

	res, err := newTestPipeline(source, store, Config{}, nil).
		Run(context.Background(), Query{Term: "tapu iptali", Limit: 1})
	require.NoError(t, err)

	require.Equal(t, 1, res.Persisted)
	require.Zero(t, res.SkippedDuplicate, "records past the limit are never seen")
	require.Equal(t, 1, source.next)
	requireAccounting(t, res)
}

func TestPipelineRun_WarmBackendPersistsNothing(t *testing.T) {
	t.Parallel()

	source := &fakeSource{records: []Record{
		record("1"), record("2"), record("3"),
	}}
	store := newFakeStore()
	store.existing["1"] = true
	store.existing["2"] = true
	store.existing["3"] = true

	res, err := newTestPipeline(source, store, Config{}, nil).
		Run(context.Background(), Query{Term: "tapu iptali", Limit: 3})
	require.NoError(t, err)

	require.Equal(t, StateCompleted, res.State)
	require.Zero(t, res.Persisted)
	require.Equal(t, 3, res.SkippedDuplicate)
	require.Empty(t, store.stored)
	requireAccounting(t, res)
}

func TestPipelineRun_ConstraintViolationCountsAsDuplicate(t *testing.T) {
	t.Parallel()

	source := &fakeSource{records: []Record{record("1"), record("2")}}
	store := newFakeStore()
	store.putErrs["1"] = []error{fmt.Errorf("%w: id 1", ErrConstraintViolation)}

	res, err := newTestPipeline(source, store, Config{}, nil).
		Run(context.Background(), Query{Term: "tapu iptali", Limit: 2})
	require.NoError(t, err)

	require.Equal(t, 1, res.Persisted)
	require.Equal(t, 1, res.SkippedDuplicate)
	require.Zero(t, res.Failed)
	requireAccounting(t, res)
}

func TestPipelineRun_PermanentFailureBelowThresholdContinues(t *testing.T) {
	t.Parallel()

	source := &fakeSource{records: []Record{
		record("1"), record("2"), record("3"),
	}}
	store := newFakeStore()
	store.putErrs["3"] = []error{fmt.Errorf("%w: row too large", ErrPermanentWrite)}

	res, err := newTestPipeline(source, store, Config{FailureThreshold: 1}, nil).
		Run(context.Background(), Query{Term: "tapu iptali", Limit: 5})
	require.NoError(t, err)

	require.Equal(t, StateCompleted, res.State)
	require.Equal(t, 2, res.Persisted)
	require.Equal(t, 1, res.Failed)
	requireAccounting(t, res)
}

func TestPipelineRun_FailureThresholdAborts(t *testing.T) {
	t.Parallel()

	source := &fakeSource{records: []Record{record("1"), record("2")}}
	store := newFakeStore()
	store.putErrs["1"] = []error{fmt.Errorf("%w: row too large", ErrPermanentWrite)}

	res, err := newTestPipeline(source, store, Config{FailureThreshold: 0}, nil).
		Run(context.Background(), Query{Term: "tapu iptali", Limit: 5})

	require.ErrorIs(t, err, ErrPermanentWrite)
	require.Equal(t, StateAborted, res.State)
	require.Equal(t, 1, res.Failed)
	require.True(t, store.closed)
	requireAccounting(t, res)
}

func TestPipelineRun_DeadConnectionAbortsAfterRetries(t *testing.T) {
	t.Parallel()

	source := &fakeSource{records: []Record{record("1")}}
	store := newFakeStore()
	connErr := fmt.Errorf("%w: refused", ErrConnection)
	store.putErrs["1"] = []error{connErr, connErr, connErr, connErr}

	res, err := newTestPipeline(source, store, Config{}, nil).
		Run(context.Background(), Query{Term: "tapu iptali", Limit: 1})

	require.ErrorIs(t, err, ErrConnection)
	require.Equal(t, StateAborted, res.State)
	require.Zero(t, res.Persisted)
	require.Equal(t, 1, res.Failed, "the unpersisted record counts as failed")
	require.Equal(t, 3, store.puts["1"], "three attempts, then give up")
	require.True(t, store.closed)
	requireAccounting(t, res)
}

func TestPipelineRun_TransientConnectionErrorRecovers(t *testing.T) {
	t.Parallel()

	source := &fakeSource{records: []Record{record("1")}}
	store := newFakeStore()
	store.putErrs["1"] = []error{fmt.Errorf("%w: blip", ErrConnection)}

	res, err := newTestPipeline(source, store, Config{}, nil).
		Run(context.Background(), Query{Term: "tapu iptali", Limit: 1})
	require.NoError(t, err)

	require.Equal(t, 1, res.Persisted)
	require.Equal(t, 2, store.puts["1"])
	requireAccounting(t, res)
}

func TestPipelineRun_SourceErrorAbortsWithPartialCounts(t *testing.T) {
	t.Parallel()

	source := &fakeSource{
		records: []Record{record("1"), record("2")},
		errs:    map[int]error{2: fmt.Errorf("%w: status 503", ErrSourceUnavailable)},
	}
	store := newFakeStore()

	res, err := newTestPipeline(source, store, Config{}, nil).
		Run(context.Background(), Query{Term: "tapu iptali", Limit: 5})

	require.ErrorIs(t, err, ErrSourceUnavailable)
	require.Equal(t, StateAborted, res.State)
	require.Equal(t, 2, res.Persisted)
	require.True(t, store.closed)
	requireAccounting(t, res)
}

func TestPipelineRun_CancellationClosesStore(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := newFakeStore()
	res, err := newTestPipeline(&fakeSource{records: []Record{record("1")}}, store, Config{}, nil).
		Run(ctx, Query{Term: "tapu iptali", Limit: 1})

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StateAborted, res.State)
	require.True(t, store.closed)
}

func TestPipelineRun_DegradedExistenceProbeStillDedupsInRun(t *testing.T) {
	t.Parallel()

	source := &fakeSource{records: []Record{record("1"), record("1")}}
	store := newFakeStore()
	store.probeErr = errors.New("probe unsupported")

	res, err := newTestPipeline(source, store, Config{}, nil).
		Run(context.Background(), Query{Term: "tapu iptali", Limit: 5})
	require.NoError(t, err)

	require.Equal(t, 1, res.Persisted)
	require.Equal(t, 1, res.SkippedDuplicate)
	requireAccounting(t, res)
}

func TestPipelineState(t *testing.T) {
	t.Parallel()

	t.Run("transitions through fetching and persisting", func(t *testing.T) {
		t.Parallel()
		source := &fakeSource{records: []Record{record("1")}}
		store := newFakeStore()
		p := newTestPipeline(source, store, Config{}, nil)

		var fetching, persisting RunState
		source.onNext = func() { fetching = p.State() }
		store.onPut = func() { persisting = p.State() }

		require.Equal(t, StateIdle, p.State())

		_, err := p.Run(context.Background(), Query{Term: "tapu iptali", Limit: 1})
		require.NoError(t, err)

		require.Equal(t, StateFetching, fetching)
		require.Equal(t, StatePersisting, persisting)
		require.Equal(t, StateCompleted, p.State())
	})

	t.Run("aborted run ends in aborted", func(t *testing.T) {
		t.Parallel()
		p := newTestPipeline(&fakeSource{}, newFakeStore(), Config{}, nil)

		_, err := p.Run(context.Background(), Query{Term: "tapu iptali", Limit: 0})
		require.ErrorIs(t, err, ErrInvalidQuery)
		require.Equal(t, StateAborted, p.State())
	})
}

func TestPipelineRun_PublishesRunSummary(t *testing.T) {
	t.Parallel()

	source := &fakeSource{records: []Record{record("1")}}
	store := newFakeStore()
	pub := memory.New()

	res, err := newTestPipeline(source, store, Config{SummaryTopic: "uploader-runs"}, pub).
		Run(context.Background(), Query{Term: "tapu iptali", Limit: 1})
	require.NoError(t, err)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "uploader-runs", msgs[0].Topic)
	published, ok := msgs[0].Payload.(Result)
	require.True(t, ok)
	require.Equal(t, res.Persisted, published.Persisted)
}

func TestPipelineRun_PublishFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()

	source := &fakeSource{records: []Record{record("1")}}
	pub := memory.New()
	pub.Fail(errors.New("broker down"))

	res, err := newTestPipeline(source, newFakeStore(), Config{SummaryTopic: "uploader-runs"}, pub).
		Run(context.Background(), Query{Term: "tapu iptali", Limit: 1})

	require.NoError(t, err)
	require.Equal(t, StateCompleted, res.State)
}
