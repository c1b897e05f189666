// Package runtime is a small convenience for starting and stopping a fixed
// set of Contexts together, the way worker.Start/worker.Stop manage a pool
// of goroutines for one worker. It owns no dispatch behavior of its own.
package runtime

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haldorn/relay/econtext"
)

// starter is the subset of *econtext.Context a Group needs. Declared
// locally so tests can supply a fake without starting real worker
// goroutines.
type starter interface {
	Name() string
	Start()
	Stop(timeout time.Duration) bool
}

// Group starts and stops a fixed collection of Contexts as a unit.
type Group struct {
	contexts []starter
}

// New builds a Group over contexts. The slice is copied; later mutation of
// the caller's slice does not affect the Group.
func New(contexts ...*econtext.Context) *Group {
	g := &Group{contexts: make([]starter, len(contexts))}
	for i, c := range contexts {
		g.contexts[i] = c
	}
	return g
}

// Start starts every Context in the group. Context.Start never itself
// fails, but Start returns an error to leave room for future Contexts that
// might (and to give Group a uniform signature with Stop).
func (g *Group) Start(ctx context.Context) error {
	grp, _ := errgroup.WithContext(ctx)
	for _, c := range g.contexts {
		c := c
		grp.Go(func() error {
			log.Printf("[Group] starting context %s", c.Name())
			c.Start()
			return nil
		})
	}
	return grp.Wait()
}

// Stop stops every Context in the group concurrently, each bounded by
// timeout, and returns an error naming the first Context found to have
// failed to drain before its deadline.
func (g *Group) Stop(timeout time.Duration) error {
	grp := &errgroup.Group{}
	for _, c := range g.contexts {
		c := c
		grp.Go(func() error {
			if !c.Stop(timeout) {
				return fmt.Errorf("runtime: context %s did not stop within %s", c.Name(), timeout)
			}
			return nil
		})
	}
	return grp.Wait()
}
