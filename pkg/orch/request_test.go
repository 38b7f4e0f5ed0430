package orch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeRequest struct {
	parseErr error
	parsed   int
	cleared  int
}

func (r *fakeRequest) Parse(t Tuple) error {
	r.parsed++
	return r.parseErr
}

func (r *fakeRequest) Clear() { r.cleared++ }

type fakeOps struct {
	addOK, delOK bool
	adds, dels   int
}

func (o *fakeOps) AddOperation(ctx context.Context, req Request) bool {
	o.adds++
	return o.addOK
}

func (o *fakeOps) DelOperation(ctx context.Context, req Request) bool {
	o.dels++
	return o.delOK
}

func TestRequestHandlerDispatch(t *testing.T) {
	req := &fakeRequest{}
	ops := &fakeOps{addOK: true, delOK: true}
	h := NewRequestHandler(req, ops, nil)

	status := h.ProcessTask(context.Background(), Tuple{Key: "k", Op: OpSet})
	assert.Equal(t, TaskSuccess, status)
	assert.Equal(t, 1, ops.adds)

	status = h.ProcessTask(context.Background(), Tuple{Key: "k", Op: OpDel})
	assert.Equal(t, TaskSuccess, status)
	assert.Equal(t, 1, ops.dels)

	// the request is cleared after every entry
	assert.Equal(t, 2, req.cleared)
}

func TestRequestHandlerParseFailure(t *testing.T) {
	req := &fakeRequest{parseErr: errors.New("malformed key")}
	ops := &fakeOps{addOK: true, delOK: true}
	h := NewRequestHandler(req, ops, nil)

	status := h.ProcessTask(context.Background(), Tuple{Key: "k", Op: OpSet})
	assert.Equal(t, TaskInvalidEntry, status)
	assert.Zero(t, ops.adds)
	assert.Equal(t, 1, req.cleared)
}

func TestRequestHandlerRetry(t *testing.T) {
	h := NewRequestHandler(&fakeRequest{}, &fakeOps{}, nil)

	status := h.ProcessTask(context.Background(), Tuple{Key: "k", Op: OpSet})
	assert.Equal(t, TaskNeedRetry, status)

	status = h.ProcessTask(context.Background(), Tuple{Key: "k", Op: OpDel})
	assert.Equal(t, TaskNeedRetry, status)
}

func TestRequestHandlerUnknownOp(t *testing.T) {
	ops := &fakeOps{addOK: true, delOK: true}
	h := NewRequestHandler(&fakeRequest{}, ops, nil)

	status := h.ProcessTask(context.Background(), Tuple{Key: "k", Op: Operation("FLUSH")})
	assert.Equal(t, TaskInvalidEntry, status)
	assert.Zero(t, ops.adds)
	assert.Zero(t, ops.dels)
}
