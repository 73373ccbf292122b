package traverse

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarkpan/quarkpan/internal/api"
	"github.com/quarkpan/quarkpan/internal/constants"
	"github.com/quarkpan/quarkpan/internal/listing"
	"github.com/quarkpan/quarkpan/internal/models"
	"github.com/quarkpan/quarkpan/internal/pathindex"
)

// fakeTree serves directory listings from a map, one page at a time.
type fakeTree struct {
	children map[string][]models.Node
}

func (f *fakeTree) FetchPage(_ context.Context, dirID string, page, size int) (*api.Page, error) {
	all := f.children[dirID]
	start := (page - 1) * size
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return &api.Page{
		IsOwner: true,
		Nodes:   all[start:end],
		Cursor:  models.PageCursor{Page: page, Size: size, Total: len(all)},
	}, nil
}

func dir(id, name, parent string) models.Node {
	return models.Node{ID: id, Name: name, IsDir: true, ParentID: parent}
}

func file(id, name, parent string) models.Node {
	return models.Node{ID: id, Name: name, ParentID: parent}
}

// depthThreeTree is root -> {A, B, f0}; A -> {A1, A2, fa}; B -> {B1}; A1 -> {A1x}.
func depthThreeTree() *fakeTree {
	return &fakeTree{children: map[string][]models.Node{
		"root": {dir("A", "A", "root"), dir("B", "B", "root"), file("f0", "f0.txt", "root")},
		"A":    {dir("A1", "A1", "A"), dir("A2", "A2", "A"), file("fa", "fa.txt", "A")},
		"B":    {dir("B1", "B1", "B")},
		"A1":   {dir("A1x", "A1x", "A1")},
	}}
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func testEngine(tree *fakeTree, workers int) *Engine {
	opts := DefaultOptions()
	opts.Workers = workers
	opts.Sleep = noSleep
	return NewEngine(listing.NewLister(tree), nil, opts)
}

type memResults struct {
	mu      sync.Mutex
	records []models.ShareRecord
}

func (m *memResults) Append(r models.ShareRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

type memFailures struct {
	mu      sync.Mutex
	records []models.RetryRecord
}

func (m *memFailures) Append(r models.RetryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func session(depth int) Session {
	return Session{RootID: "root", RootName: "Root", Depth: depth}
}

func targetIDs(targets []Target) []string {
	ids := make([]string, len(targets))
	for i, t := range targets {
		ids[i] = t.Node.ID
	}
	return ids
}

func TestSelectTargetsDepthPolicy(t *testing.T) {
	e := testEngine(depthThreeTree(), 1)
	ctx := context.Background()

	targets, err := e.SelectTargets(ctx, session(0))
	require.NoError(t, err)
	assert.Equal(t, []string{"root"}, targetIDs(targets))
	assert.Equal(t, []string{"Root"}, targets[0].Path)

	targets, err = e.SelectTargets(ctx, session(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, targetIDs(targets))
	assert.Equal(t, []string{"A"}, targets[0].Path)

	targets, err = e.SelectTargets(ctx, session(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2", "B1"}, targetIDs(targets))
	assert.Equal(t, []string{"A", "A2"}, targets[1].Path)
	for i, tg := range targets {
		assert.Equal(t, i+1, tg.Seq)
	}

	_, err = e.SelectTargets(ctx, session(3))
	assert.Error(t, err)
}

func TestRunWritesResultsInListingOrder(t *testing.T) {
	e := testEngine(depthThreeTree(), 4)

	release := make(chan struct{})
	var others atomic.Int32
	action := func(ctx context.Context, tg Target) (string, error) {
		if tg.Seq == 1 {
			select {
			case <-release:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		} else if others.Add(1) == 2 {
			close(release)
		}
		return "https://pan.quark.cn/s/" + tg.Node.ID, nil
	}

	results := &memResults{}
	summary, err := e.Run(context.Background(), session(2), action, results, &memFailures{})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Succeeded)
	assert.NotEmpty(t, summary.RunID)

	require.Len(t, results.records, 3)
	for i, r := range results.records {
		assert.Equal(t, i+1, r.Seq)
	}
	assert.Equal(t, []string{"A", "A1"}, results.records[0].Path)
	assert.Equal(t, "https://pan.quark.cn/s/B1", results.records[2].URL)
}

func TestRunExhaustedNodeRecordedOnceAndContinues(t *testing.T) {
	e := testEngine(depthThreeTree(), 1)

	var calls sync.Map
	action := func(_ context.Context, tg Target) (string, error) {
		n, _ := calls.LoadOrStore(tg.Node.ID, new(atomic.Int32))
		n.(*atomic.Int32).Add(1)
		if tg.Node.ID == "A" {
			return "", errors.New("share task failed")
		}
		return "url-" + tg.Node.ID, nil
	}

	results := &memResults{}
	failures := &memFailures{}
	summary, err := e.Run(context.Background(), session(1), action, results, failures)
	require.NoError(t, err)

	require.Len(t, failures.records, 1)
	assert.Equal(t, models.RetryRecord{Seq: 1, Path: []string{"A"}, NodeID: "A"}, failures.records[0])
	require.Len(t, results.records, 1)
	assert.Equal(t, "url-B", results.records[0].URL)
	assert.Equal(t, 1, summary.Failed)

	n, _ := calls.Load("A")
	assert.Equal(t, int32(constants.NodeActionAttempts), n.(*atomic.Int32).Load())
}

func TestRunConflictIsNotRetried(t *testing.T) {
	e := testEngine(depthThreeTree(), 1)

	var calls atomic.Int32
	action := func(_ context.Context, tg Target) (string, error) {
		calls.Add(1)
		return "", &api.APIError{Op: "share.create", Code: constants.CodeFolderNameConflict}
	}

	failures := &memFailures{}
	_, err := e.Run(context.Background(), session(0), action, &memResults{}, failures)
	require.NoError(t, err)
	assert.Len(t, failures.records, 1)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunFatalFlushesCompletedOutcomes(t *testing.T) {
	e := testEngine(depthThreeTree(), 1)

	action := func(_ context.Context, tg Target) (string, error) {
		if tg.Node.ID == "A2" {
			return "", &api.APIError{Op: "share.create", Code: constants.CodeCapacityLimit}
		}
		return "url-" + tg.Node.ID, nil
	}

	results := &memResults{}
	failures := &memFailures{}
	_, err := e.Run(context.Background(), session(2), action, results, failures)
	require.Error(t, err)
	assert.True(t, api.IsCode(err, constants.CodeCapacityLimit))

	require.Len(t, results.records, 1)
	assert.Equal(t, "url-A1", results.records[0].URL)
	assert.Empty(t, failures.records)
}

func TestRunSustainedThrottleAborts(t *testing.T) {
	opts := DefaultOptions()
	opts.Sleep = noSleep
	opts.ThrottleLimit = 2
	e := NewEngine(listing.NewLister(depthThreeTree()), nil, opts)

	action := func(_ context.Context, _ Target) (string, error) {
		return "", &api.APIError{Op: "share.create", HTTPStatus: nethttp.StatusTooManyRequests}
	}

	failures := &memFailures{}
	summary, err := e.Run(context.Background(), session(2), action, &memResults{}, failures)
	require.ErrorIs(t, err, ErrSustainedThrottle)

	// B1 is never started but still lands in the ledger.
	var ids []string
	for _, r := range failures.records {
		ids = append(ids, r.NodeID)
	}
	assert.Equal(t, []string{"A1", "A2", "B1"}, ids)
	assert.Equal(t, []int{1, 2, 3}, []int{failures.records[0].Seq, failures.records[1].Seq, failures.records[2].Seq})
	assert.Equal(t, []string{"B", "B1"}, failures.records[2].Path)
	assert.Equal(t, 3, summary.Failed)
}

func TestRunSustainedThrottleRecordsCancelledNodes(t *testing.T) {
	opts := DefaultOptions()
	opts.Sleep = noSleep
	opts.Workers = 2
	opts.ThrottleLimit = 1
	e := NewEngine(listing.NewLister(depthThreeTree()), nil, opts)

	action := func(ctx context.Context, tg Target) (string, error) {
		if tg.Node.ID == "A2" {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "", &api.APIError{Op: "share.create", HTTPStatus: nethttp.StatusTooManyRequests}
	}

	results := &memResults{}
	failures := &memFailures{}
	_, err := e.Run(context.Background(), session(2), action, results, failures)
	require.ErrorIs(t, err, ErrSustainedThrottle)
	assert.Empty(t, results.records)

	var ids []string
	for _, r := range failures.records {
		ids = append(ids, r.NodeID)
	}
	assert.Equal(t, []string{"A1", "A2", "B1"}, ids)
}

func TestRunCancelledByCallerRecordsNothingMore(t *testing.T) {
	e := testEngine(depthThreeTree(), 1)
	ctx, cancel := context.WithCancel(context.Background())

	failures := &memFailures{}
	_, err := e.Run(ctx, session(2), func(_ context.Context, tg Target) (string, error) {
		cancel()
		return "", context.Canceled
	}, &memResults{}, failures)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, failures.records)
}

func TestExecuteUsesRecordSequence(t *testing.T) {
	e := testEngine(depthThreeTree(), 2)
	targets := []Target{
		{Seq: 4, Node: models.Node{ID: "x"}, Path: []string{"A", "x"}},
		{Seq: 9, Node: models.Node{ID: "y"}, Path: []string{"B", "y"}},
	}
	results := &memResults{}
	_, err := e.Execute(context.Background(), targets, func(_ context.Context, tg Target) (string, error) {
		return fmt.Sprintf("url-%d", tg.Seq), nil
	}, results, nil)
	require.NoError(t, err)
	require.Len(t, results.records, 2)
	assert.Equal(t, 4, results.records[0].Seq)
	assert.Equal(t, 9, results.records[1].Seq)
}

// TestWalkFilesEnumeratesAllFiles covers a root with two files and one
// subfolder holding one file: three actions under one destination.
func TestWalkFilesEnumeratesAllFiles(t *testing.T) {
	tree := &fakeTree{children: map[string][]models.Node{
		"0": {
			dir("sub", "Sub", "0"),
			file("f1", "one.txt", "0"),
			file("f2", "two.txt", "0"),
		},
		"sub": {file("f3", "three.txt", "sub")},
	}}
	e := testEngine(tree, 1)
	idx := pathindex.New(constants.MaxResolveDepth)

	actions, stats, err := e.Enumerate(context.Background(), Session{RootID: "0", DestDirID: "dest"}, idx)
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, 1, stats.Directories)

	for _, a := range actions {
		assert.Equal(t, "dest", a.DestDirID)
	}
	assert.Equal(t, "f3", actions[0].Node.ID)
	assert.Equal(t, []string{"Sub"}, actions[0].Path)
	assert.Empty(t, actions[2].Path)
}

func TestWalkFilesFullDepth(t *testing.T) {
	tree := depthThreeTree()
	tree.children["A1x"] = []models.Node{file("deep", "deep.bin", "A1x")}
	e := testEngine(tree, 1)
	idx := pathindex.New(constants.MaxResolveDepth)

	var scans int
	e.opts.OnScan = func(WalkStats) { scans++ }

	actions, _, err := e.Enumerate(context.Background(), session(0), idx)
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Equal(t, "deep", actions[0].Node.ID)
	assert.Equal(t, []string{"A", "A1", "A1x"}, actions[0].Path)
	assert.Equal(t, "f0", actions[2].Node.ID)
	assert.Equal(t, 7, scans)
}

func TestWalkFilesStopsOnVisitError(t *testing.T) {
	e := testEngine(depthThreeTree(), 1)
	idx := pathindex.New(constants.MaxResolveDepth)
	boom := errors.New("disk full")

	_, err := e.WalkFiles(context.Background(), session(0), idx, func(context.Context, []models.FileAction) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestWalkFilesIgnoresIndexForDescent(t *testing.T) {
	e := testEngine(depthThreeTree(), 1)
	idx := pathindex.New(constants.MaxResolveDepth)
	idx.Record("A", "A", "root")
	idx.Record("A1", "A1", "A")

	actions, stats, err := e.Enumerate(context.Background(), session(0), idx)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Directories)
	assert.Len(t, actions, 2)
}

func TestWalkFilesEntersRepeatedDirectoryOnce(t *testing.T) {
	tree := &fakeTree{children: map[string][]models.Node{
		"root": {dir("sub", "Sub", "root"), dir("sub", "Sub", "root")},
		"sub":  {dir("sub", "Sub", "sub"), file("f1", "one.txt", "sub")},
	}}
	e := testEngine(tree, 1)
	idx := pathindex.New(constants.MaxResolveDepth)

	actions, stats, err := e.Enumerate(context.Background(), Session{RootID: "root"}, idx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Directories)
	require.Len(t, actions, 1)
	assert.Equal(t, []string{"Sub"}, actions[0].Path)
}
