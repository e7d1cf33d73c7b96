package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/convergeproj/converge/pkg/cluster"
	"github.com/convergeproj/converge/pkg/resource"
)

// Polling resources one at a time makes health checking the slowest
// step for large applications, so reads go out concurrently, up to
// this many at once.
const maxConcurrentChecks = 8

// Status classifies the observed health of a resource, or of a whole
// application.
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusProgressing Status = "progressing"
	StatusDegraded    Status = "degraded"
	StatusMissing     Status = "missing"
	StatusUnknown     Status = "unknown"
)

// Fixed severity ordering for aggregation: the aggregate is the worst
// constituent status.
var severity = map[Status]int{
	StatusHealthy:     0,
	StatusUnknown:     1,
	StatusProgressing: 2,
	StatusMissing:     3,
	StatusDegraded:    4,
}

// Worse returns the more severe of two statuses.
func Worse(a, b Status) Status {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

// ResourceHealth is the health of one resource, with a short
// explanation when it is anything other than healthy.
type ResourceHealth struct {
	ID      resource.ID `json:"id"`
	Status  Status      `json:"status"`
	Message string      `json:"message,omitempty"`
}

// Report is the outcome of evaluating an application's resources.
type Report struct {
	Status    Status           `json:"status"`
	Resources []ResourceHealth `json:"resources"`
	CheckedAt time.Time        `json:"checkedAt"`
}

// Evaluator polls applied resources and classifies them via per-kind
// rules. It only reads from the cluster.
type Evaluator struct {
	Reader cluster.Reader
}

func NewEvaluator(reader cluster.Reader) *Evaluator {
	return &Evaluator{Reader: reader}
}

// Evaluate polls each of the given resources and aggregates. A
// resource that cannot be read at all does not fail the evaluation;
// it degrades to Unknown (or Missing, when the cluster positively
// says it is gone).
func (e *Evaluator) Evaluate(ctx context.Context, ids []resource.ID) Report {
	report := Report{
		Status:    StatusHealthy,
		CheckedAt: time.Now().UTC(),
	}

	results := make([]ResourceHealth, len(ids))
	group, groupCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, maxConcurrentChecks)
	for i, id := range ids {
		i, id := i, id
		group.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = e.evaluateOne(groupCtx, id)
			return nil
		})
	}
	group.Wait()

	report.Resources = results
	for _, rh := range results {
		report.Status = Worse(report.Status, rh.Status)
	}
	return report
}

func (e *Evaluator) evaluateOne(ctx context.Context, id resource.ID) ResourceHealth {
	live, err := e.Reader.Get(ctx, id)
	switch {
	case cluster.IsNotFound(err):
		return ResourceHealth{ID: id, Status: StatusMissing, Message: "resource is not present in the cluster"}
	case err != nil:
		return ResourceHealth{ID: id, Status: StatusUnknown, Message: err.Error()}
	}
	status, message := RuleFor(id.Kind())(live.Obj)
	return ResourceHealth{ID: id, Status: status, Message: message}
}
