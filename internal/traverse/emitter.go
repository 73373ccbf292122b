package traverse

import (
	"sort"
	"sync"

	"github.com/quarkpan/quarkpan/internal/models"
)

// ResultWriter receives successful node actions.
type ResultWriter interface {
	Append(models.ShareRecord) error
}

// FailureWriter receives nodes whose attempts were exhausted.
type FailureWriter interface {
	Append(models.RetryRecord) error
}

type outcome struct {
	result  *models.ShareRecord
	failure *models.RetryRecord
}

// orderedEmitter writes outcomes in target order regardless of the order in
// which workers finish. Outcomes wait in pending until every earlier position
// has completed.
type orderedEmitter struct {
	results  ResultWriter
	failures FailureWriter
	next     int
	pending  map[int]outcome
	mu       sync.Mutex
}

func newOrderedEmitter(results ResultWriter, failures FailureWriter) *orderedEmitter {
	return &orderedEmitter{
		results:  results,
		failures: failures,
		pending:  make(map[int]outcome),
	}
}

// complete registers the outcome for position pos. An empty outcome marks a
// position that produces no output.
func (o *orderedEmitter) complete(pos int, out outcome) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.pending[pos] = out
	for {
		next, ok := o.pending[o.next]
		if !ok {
			return nil
		}
		delete(o.pending, o.next)
		o.next++
		if err := o.write(next); err != nil {
			return err
		}
	}
}

// flush writes every completed outcome still waiting on an earlier position.
// Used when the run ends early and some positions never complete.
func (o *orderedEmitter) flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	positions := make([]int, 0, len(o.pending))
	for pos := range o.pending {
		positions = append(positions, pos)
	}
	sort.Ints(positions)

	var firstErr error
	for _, pos := range positions {
		if err := o.write(o.pending[pos]); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(o.pending, pos)
	}
	return firstErr
}

func (o *orderedEmitter) write(out outcome) error {
	if out.result != nil && o.results != nil {
		if err := o.results.Append(*out.result); err != nil {
			return err
		}
	}
	if out.failure != nil && o.failures != nil {
		if err := o.failures.Append(*out.failure); err != nil {
			return err
		}
	}
	return nil
}
