package engine

import (
	"container/heap"
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

type nodeState int

const (
	nodeWaiting nodeState = iota
	nodeReady
	nodeRunning
	nodeDone
)

// coordinator owns readiness in parallel mode. Only the goroutine running
// loop touches its fields; workers report back through done.
type coordinator struct {
	s     *Scheduler
	g     *Graph
	ctx   context.Context
	start time.Time

	state   []nodeState
	pending []int
	ready   *readyQueue

	running   int
	remaining int
	cancelled bool

	done chan int
	eg   errgroup.Group
}

func (s *Scheduler) runParallel(ctx context.Context, sched *Schedule) error {
	g := sched.Graph
	n := g.Len()
	c := &coordinator{
		s:         s,
		g:         g,
		ctx:       ctx,
		start:     s.now(),
		state:     make([]nodeState, n),
		pending:   make([]int, n),
		ready:     &readyQueue{graph: g},
		remaining: n,
		done:      make(chan int, n),
	}
	c.eg.SetLimit(s.opts.MaxWorkers)

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for i, node := range g.nodes {
		c.pending[i] = len(node.deps)
		s.publish(ctx, node.desc.Name, StateWaiting)
	}
	for i := range g.nodes {
		if c.state[i] == nodeWaiting && c.pending[i] == 0 {
			keep(c.admit(i))
		}
	}

	var expired <-chan time.Time
	if wait := s.opts.DependencyWait; wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		expired = timer.C
	}
	cancelled := ctx.Done()

	for c.remaining > 0 {
		c.dispatch()
		if c.remaining == 0 {
			break
		}

		select {
		case i := <-c.done:
			c.running--
			s.metrics.setBusy(c.running)
			keep(c.complete(i))
		case <-cancelled:
			cancelled = nil
			keep(c.cancel())
		case <-expired:
			expired = nil
			keep(c.expire())
		}
	}

	keep(c.eg.Wait())
	s.metrics.setBusy(0)
	s.metrics.setQueueDepth(0)
	return firstErr
}

// dispatch starts ready plugins while workers are free.
func (c *coordinator) dispatch() {
	for !c.cancelled && c.ctx.Err() == nil && c.running < c.s.opts.MaxWorkers && c.ready.Len() > 0 {
		i := heap.Pop(c.ready).(int)
		desc := c.g.nodes[i].desc
		c.state[i] = nodeRunning
		c.running++

		c.eg.Go(func() error {
			err := c.s.record(c.ctx, c.s.execute(c.ctx, desc))
			c.done <- i
			return err
		})
	}
	c.s.metrics.setBusy(c.running)
	c.s.metrics.setQueueDepth(c.ready.Len())
}

// admit is called once every dependency of i is terminal.
func (c *coordinator) admit(i int) error {
	desc := c.g.nodes[i].desc
	if c.cancelled {
		return c.skip(i, ErrCancelled)
	}
	if err := c.s.evaluate(desc, c.g); err != nil {
		return c.skip(i, err)
	}
	c.state[i] = nodeReady
	heap.Push(c.ready, i)
	c.s.publish(c.ctx, desc.Name, StateReady)
	return nil
}

func (c *coordinator) skip(i int, reason error) error {
	c.finish(i)
	err := c.s.record(c.ctx, c.s.skipped(c.g.nodes[i].desc.Name, reason))
	if rerr := c.release(i); err == nil {
		err = rerr
	}
	return err
}

// complete handles a worker's report that i has its result.
func (c *coordinator) complete(i int) error {
	c.finish(i)
	return c.release(i)
}

func (c *coordinator) finish(i int) {
	c.state[i] = nodeDone
	c.remaining--
}

// release admits dependents of i for which i was the last open dependency.
func (c *coordinator) release(i int) error {
	var firstErr error
	for _, j := range c.g.nodes[i].dependents {
		if c.state[j] != nodeWaiting {
			continue
		}
		c.pending[j]--
		if c.pending[j] == 0 {
			if err := c.admit(j); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// cancel skips everything not yet running. Running plugins observe the
// cancelled context and finish on their own.
func (c *coordinator) cancel() error {
	c.cancelled = true
	var firstErr error
	for i := range c.g.nodes {
		if c.state[i] != nodeWaiting && c.state[i] != nodeReady {
			continue
		}
		if err := c.skip(i, ErrCancelled); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.ready = &readyQueue{graph: c.g}
	return firstErr
}

// expire skips every plugin still waiting on dependencies once
// DependencyWait has elapsed. All of them are marked first so a skip cannot
// cascade into admitting another expired plugin.
func (c *coordinator) expire() error {
	type expiredNode struct {
		index   int
		blocker string
	}
	var expired []expiredNode
	for i, node := range c.g.nodes {
		if c.state[i] != nodeWaiting {
			continue
		}
		blocker := ""
		for _, j := range node.deps {
			if c.state[j] != nodeDone {
				blocker = c.g.nodes[j].desc.Name
				break
			}
		}
		expired = append(expired, expiredNode{index: i, blocker: blocker})
	}

	for _, e := range expired {
		c.finish(e.index)
	}

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, e := range expired {
		name := c.g.nodes[e.index].desc.Name
		c.s.logger.Warn().
			Str("plugin", name).
			Str("waiting_on", e.blocker).
			Dur("waited", c.s.now().Sub(c.start)).
			Msg("Dependency wait exceeded")
		reason := &DependencyTimeoutError{Plugin: e.blocker, Wait: c.s.opts.DependencyWait}
		keep(c.s.record(c.ctx, c.s.skipped(name, reason)))
	}
	for _, e := range expired {
		keep(c.release(e.index))
	}
	return firstErr
}
