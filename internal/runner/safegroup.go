// Package runner runs the host-side goroutines around a kernel (the machine
// itself, its clock, the config watcher) as one group.
package runner

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/kestrel-os/kestrel/pkg/logger"
)

// SafeGroup is an errgroup.Group whose goroutines cannot crash the
// process: a panic becomes the group's error.
type SafeGroup struct {
	group  *errgroup.Group
	logger logger.Logger
}

// NewSafeGroup creates a group bound to ctx. The returned context is
// cancelled when the first goroutine fails.
func NewSafeGroup(ctx context.Context, log logger.Logger) (*SafeGroup, context.Context) {
	if log == nil {
		log = logger.Discard()
	}
	g, ctx := errgroup.WithContext(ctx)
	return &SafeGroup{
		group:  g,
		logger: log,
	}, ctx
}

// Go runs fn in a new goroutine, converting a panic into an error.
func (sg *SafeGroup) Go(name string, fn func() error) {
	sg.group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				sg.logger.Error("goroutine panic recovered",
					logger.WithField("goroutine", name),
					logger.WithField("panic", r),
					logger.WithField("stack_trace", string(debug.Stack())))
				err = fmt.Errorf("%s: goroutine panic: %v", name, r)
			}
		}()
		return fn()
	})
}

// SetLimit caps the number of goroutines running at once.
func (sg *SafeGroup) SetLimit(n int) {
	sg.group.SetLimit(n)
}

// Wait blocks until every goroutine has returned and reports the first error.
func (sg *SafeGroup) Wait() error {
	return sg.group.Wait()
}
