package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/vedvix/ledgersync/internal/erp"
)

// FakeERP is a scriptable in-memory accounting-system client.
//
// By default every post succeeds with a generated external ID. Tests
// script failures by setting Err (applied to every call) or by queueing
// per-call responses with Script. All posted requests are recorded for
// assertion.
//
// Thread-safety: all methods are safe for concurrent use.
type FakeERP struct {
	mu       sync.Mutex
	requests []erp.PostRequest
	scripted []scriptedResponse
	err      error
	nextID   int
}

type scriptedResponse struct {
	result erp.PostResult
	err    error
}

// NewFakeERP creates a fake client where every post succeeds.
func NewFakeERP() *FakeERP {
	return &FakeERP{}
}

// PostInvoice implements erp.Client.
func (f *FakeERP) PostInvoice(ctx context.Context, req erp.PostRequest) (erp.PostResult, error) {
	if err := ctx.Err(); err != nil {
		return erp.PostResult{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)

	if len(f.scripted) > 0 {
		next := f.scripted[0]
		f.scripted = f.scripted[1:]
		return next.result, next.err
	}
	if f.err != nil {
		return erp.PostResult{}, f.err
	}

	f.nextID++
	return erp.PostResult{ExternalID: fmt.Sprintf("ext-%04d", f.nextID)}, nil
}

// Fail makes every subsequent call return err until cleared with Succeed.
func (f *FakeERP) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Succeed clears a previously set failure.
func (f *FakeERP) Succeed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = nil
}

// Script queues a single response returned by the next call, ahead of
// any Fail setting. Calls consume scripted responses in order.
func (f *FakeERP) Script(result erp.PostResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripted = append(f.scripted, scriptedResponse{result: result, err: err})
}

// Requests returns a copy of every request posted so far.
func (f *FakeERP) Requests() []erp.PostRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]erp.PostRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// CallCount returns how many times PostInvoice was called.
func (f *FakeERP) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}
