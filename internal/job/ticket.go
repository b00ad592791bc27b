package job

import "context"

// Ticket tracks one submitted job.
type Ticket struct {
	id   string
	done chan struct{}
	agg  *Aggregate
	err  error
}

// NewTicket returns an unresolved ticket for id. The controller creates
// one per admitted job.
func NewTicket(id string) *Ticket {
	return &Ticket{id: id, done: make(chan struct{})}
}

// ID returns the job ID.
func (t *Ticket) ID() string { return t.id }

// Done is closed when the job has finished.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Wait blocks until the job finishes or ctx ends. The aggregate is returned
// even for failed jobs.
func (t *Ticket) Wait(ctx context.Context) (*Aggregate, error) {
	select {
	case <-t.done:
		return t.agg, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Ticket) resolve(agg *Aggregate, err error) {
	t.agg, t.err = agg, err
	close(t.done)
}
