package pipeline

import (
	"errors"
	"sync"
)

// errCollector gathers non-fatal per-file errors from concurrent stage
// workers without aborting the run (§4.1 failure semantics: parse/handler
// errors are reported, not fatal).
type errCollector struct {
	mu   sync.Mutex
	errs []error
}

func newErrCollector() *errCollector {
	return &errCollector{}
}

func (c *errCollector) add(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *errCollector) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.errs) == 0 {
		return nil
	}
	return errors.Join(c.errs...)
}
