package tiered

import "context"

// idCell is a one-shot result cell for an instance id. It starts pending
// and moves to assigned (or failed) exactly once.
type idCell struct {
	done chan struct{}
	id   string
	err  error
}

func pendingID(ctx context.Context, gen func(context.Context) (string, error)) *idCell {
	c := &idCell{done: make(chan struct{})}
	go func() {
		c.id, c.err = gen(ctx)
		close(c.done)
	}()
	return c
}

func assignedID(id string) *idCell {
	c := &idCell{done: make(chan struct{}), id: id}
	close(c.done)
	return c
}

func (c *idCell) wait(ctx context.Context) (string, error) {
	select {
	case <-c.done:
		return c.id, c.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// peek returns the id without blocking.
func (c *idCell) peek() (string, bool) {
	select {
	case <-c.done:
		return c.id, c.err == nil
	default:
		return "", false
	}
}

func (c *idCell) failed() bool {
	select {
	case <-c.done:
		return c.err != nil
	default:
		return false
	}
}
