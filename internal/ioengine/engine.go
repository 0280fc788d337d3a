// Package ioengine dispatches overlapped reads across a fixed worker pool
// and routes their completions back to the caller-supplied callback
// (spec.md §4.2). The real Win32 half — opening a handle with
// FILE_FLAG_OVERLAPPED and servicing it with a true I/O completion port —
// lives behind internal/volume's Device on Windows; this package only
// needs a Reader that can perform a positioned read, so the worker-pool
// dispatch and priority-queue logic here are portable and testable on any
// platform. Concurrency is capped with golang.org/x/sync/semaphore and the
// worker fan-out is driven by golang.org/x/sync/errgroup, in place of the
// teacher's ad-hoc sync.WaitGroup + channel combinations.
package ioengine

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	mfterrors "github.com/cobaltfs/mftindex/internal/errors"
)

// Handle identifies an open stream the engine reads from. It carries no
// meaning of its own beyond being a key into Engine's association table;
// internal/volume.Descriptor supplies the real file handle underneath.
type Handle uintptr

// Reader performs a single positioned read. internal/volume.Device
// satisfies this shape without either package importing the other.
type Reader interface {
	ReadAt(ctx context.Context, buf []byte, offset int64) (int, error)
}

// Action is what an Overlapped's completion callback decides to do with
// itself once its read has landed (spec.md §4.2, §9: "model each packet as
// a task that owns its buffer and returns an enum { Requeue, Keep,
// Destroy }").
type Action int

const (
	// Requeue schedules the next block (the callback is expected to have
	// already issued a new ReadFile for the following extent).
	Requeue Action = iota
	// Done keeps the packet's buffer alive; the caller retains ownership.
	Done
	// Destroy releases the packet; nothing references its buffer further.
	Destroy
)

// Overlapped is the control block accompanying one submitted read
// (spec.md §4.2). RefCount starts at 1 and a worker decrements it after
// running the callback; Close's drain sweep runs leftover callbacks without
// touching it.
type Overlapped struct {
	Offset   int64
	RefCount int32 // atomic
	Callback func(bytesTransferred uint32, key uintptr) Action
}

// NewOverlapped constructs an Overlapped ready for submission via ReadFile.
func NewOverlapped(offset int64, callback func(bytesTransferred uint32, key uintptr) Action) *Overlapped {
	return &Overlapped{Offset: offset, RefCount: 1, Callback: callback}
}

// Packet is one resolved completion, reported on the Engine's completion
// channel for Close's drain sweep and for tests.
type Packet struct {
	BytesTransferred uint32
	Key              uintptr
	Overlapped       *Overlapped
	Action           Action
}

type pendingRequest struct {
	handle     Handle
	key        uintptr
	buffer     []byte
	length     int
	overlapped *Overlapped
	synthetic  bool // Post() packets skip the reader and go straight to callback
}

// priorityQueue orders pending reads by ascending offset: the worker pool
// services the lowest-offset outstanding request first, favoring
// sequential disk access the way spec.md §4.2's "priority-sortable
// pending queue" is intended to (spec.md §4.3's policy of reading extents
// in ascending VCN order depends on this).
type priorityQueue []*pendingRequest

func (q priorityQueue) Len() int            { return len(q) }
func (q priorityQueue) Less(i, j int) bool  { return q[i].overlapped.Offset < q[j].overlapped.Offset }
func (q priorityQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x interface{}) { *q = append(*q, x.(*pendingRequest)) }
func (q *priorityQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// Engine is the completion-port stand-in: N workers draining a shared
// pending-read queue (spec.md §4.2).
type Engine struct {
	reader  Reader
	workers int

	mu       sync.Mutex
	cond     *sync.Cond
	queue    priorityQueue
	sentinel int // not read or written; shutdown is signalled through terminated

	assocMu sync.Mutex
	assoc   map[Handle]uintptr

	terminated atomic.Bool
	sem        *semaphore.Weighted

	completions chan Packet

	g       *errgroup.Group
	started bool
}

// NewEngine creates an Engine with the given worker count (spec.md §4.2:
// "N worker threads, N = OMP_NUM_THREADS else logical CPU count") and a
// bound on outstanding pending reads.
func NewEngine(workers int, reader Reader, maxPendingReads int) *Engine {
	if workers < 1 {
		workers = 1
	}
	if maxPendingReads < 1 {
		maxPendingReads = 1
	}
	e := &Engine{
		reader:      reader,
		workers:     workers,
		assoc:       make(map[Handle]uintptr),
		sem:         semaphore.NewWeighted(int64(maxPendingReads)),
		completions: make(chan Packet, maxPendingReads),
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Start launches the worker pool. Safe to call once.
func (e *Engine) Start(ctx context.Context) {
	if e.started {
		return
	}
	e.started = true
	g, ctx := errgroup.WithContext(ctx)
	e.g = g
	for i := 0; i < e.workers; i++ {
		g.Go(func() error {
			e.workerLoop(ctx)
			return nil
		})
	}
}

// Associate binds handle to key; completions for reads on that handle
// report key to the callback (spec.md §4.2: "associate(handle, key)").
func (e *Engine) Associate(handle Handle, key uintptr) {
	e.assocMu.Lock()
	defer e.assocMu.Unlock()
	e.assoc[handle] = key
}

func (e *Engine) keyFor(handle Handle) uintptr {
	e.assocMu.Lock()
	defer e.assocMu.Unlock()
	return e.assoc[handle]
}

// ReadFile enqueues a read request, to be serviced by whichever worker
// dequeues the highest-priority (lowest-offset) pending entry
// (spec.md §4.2: "read_file enqueues ... then posts a wake token").
func (e *Engine) ReadFile(handle Handle, buffer []byte, length int, ov *Overlapped) error {
	if e.terminated.Load() {
		return mfterrors.NewCancelledError("ioengine.ReadFile")
	}
	if err := e.sem.Acquire(context.Background(), 1); err != nil {
		return err
	}
	e.mu.Lock()
	heap.Push(&e.queue, &pendingRequest{handle: handle, key: e.keyFor(handle), buffer: buffer, length: length, overlapped: ov})
	e.cond.Signal()
	e.mu.Unlock()
	return nil
}

// Post synthesizes a completion without issuing a real read, e.g. for
// zero-length events (spec.md §4.2: "post(bytes, key, overlapped)").
func (e *Engine) Post(bytes uint32, key uintptr, ov *Overlapped) {
	e.mu.Lock()
	heap.Push(&e.queue, &pendingRequest{key: key, overlapped: ov, synthetic: true, length: int(bytes)})
	e.cond.Signal()
	e.mu.Unlock()
}

func (e *Engine) workerLoop(ctx context.Context) {
	for {
		req := e.popOrSentinel()
		if req == nil {
			return
		}
		e.service(ctx, req)
	}
}

// popOrSentinel blocks until a request is available and returns the
// lowest-offset one; once the engine has terminated it keeps handing out
// queued requests and returns nil only when the queue is empty.
func (e *Engine) popOrSentinel() *pendingRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.queue) == 0 {
		if e.terminated.Load() {
			return nil
		}
		e.cond.Wait()
	}
	return heap.Pop(&e.queue).(*pendingRequest)
}

func (e *Engine) service(ctx context.Context, req *pendingRequest) {
	defer func() {
		if !req.synthetic {
			e.sem.Release(1)
		}
	}()

	var bytesTransferred uint32
	if req.synthetic {
		bytesTransferred = uint32(req.length)
	} else if e.reader != nil {
		n, err := e.reader.ReadAt(ctx, req.buffer[:req.length], req.overlapped.Offset)
		if err != nil && n == 0 {
			bytesTransferred = 0
		} else {
			bytesTransferred = uint32(n)
		}
	}

	key := req.key
	action := Destroy
	if req.overlapped != nil && req.overlapped.Callback != nil {
		action = req.overlapped.Callback(bytesTransferred, key)
	}
	if req.overlapped != nil {
		atomic.AddInt32(&req.overlapped.RefCount, -1)
	}

	select {
	case e.completions <- Packet{BytesTransferred: bytesTransferred, Key: key, Overlapped: req.overlapped, Action: action}:
	default:
		// Completion channel is a best-effort observation surface (used by
		// Close's drain and tests); a full buffer never blocks a worker.
	}
}

// Close marks the engine terminated (subsequent ReadFile calls fail with
// Cancelled) and wakes every worker; each worker keeps servicing queued
// requests and exits once the queue is empty. Close waits for the pool to
// finish, then sweeps any requests left in the queue with a zero-timeout
// pass that runs their callbacks with 0 bytes.
func (e *Engine) Close() {
	e.terminated.Store(true)
	e.mu.Lock()
	e.cond.Broadcast()
	e.mu.Unlock()

	if e.g != nil {
		e.g.Wait()
	}

	// Zero-timeout sweep: resolve anything still queued (e.g. reads
	// enqueued concurrently with Close) without further blocking.
	e.mu.Lock()
	remaining := e.queue
	e.queue = nil
	e.mu.Unlock()
	for _, req := range remaining {
		if req.overlapped != nil && req.overlapped.Callback != nil {
			req.overlapped.Callback(0, req.key)
		}
	}
}

// Completions exposes the channel of resolved packets, primarily for
// tests; scheduler-driven callers observe completion through the
// Overlapped's Callback instead.
func (e *Engine) Completions() <-chan Packet {
	return e.completions
}
