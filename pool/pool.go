/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package pool owns a fixed set of long-lived transform workers, hands
// them out to callers in strict FIFO order, and primes each worker with
// source before handing it back. Workers never crash; a peer error
// rejects the current request but the worker stays in the pool.
package pool

import (
	"context"
	"fmt"
	"sync"
)

// Peer is the opaque out-of-process transform engine bound to a Worker.
// Implementations are expected to be heavyweight (one process/thread per
// peer) and are supplied by the caller — dewcache never constructs one
// itself.
type Peer interface {
	// Source primes the peer with the current file content ahead of an
	// analyze or transform request.
	Source(ctx context.Context, source []byte, filename string, production bool) error
	AnalyzeModule(ctx context.Context) (deps []string, err error)
	AnalyzeLegacy(ctx context.Context) (deps []string, err error)
	// TransformModule/TransformLegacy take the resolve map built for this
	// generation: nil values mean "resolves to an empty module", absent
	// keys mean "keep the original specifier".
	TransformModule(ctx context.Context, resolveMap map[string]*string) (source, sourceMap []byte, err error)
	TransformLegacy(ctx context.Context, resolveMap map[string]*string) (source, sourceMap []byte, err error)
}

// Worker binds one Peer to at most one record at a time. The zero value is
// not usable; construct via WorkerPool.
type Worker struct {
	id       int
	peer     Peer
	assigned bool // true while bound to a caller; guarded by the owning pool's mutex
}

// ID returns the worker's pool-assigned identity, useful for logging.
func (w *Worker) ID() int { return w.id }

// Peer exposes the bound transform engine for the duration of an assignment.
func (w *Worker) Peer() Peer { return w.peer }

// WorkerPool hands out Workers in strict FIFO order: no worker affinity, no
// priority. Construct with NewWorkerPool, giving one Peer per desired
// worker (conventionally one per CPU).
type WorkerPool struct {
	mu        sync.Mutex
	workers   []*Worker
	idle      []*Worker
	waitQueue []chan *Worker
}

// NewWorkerPool constructs a pool with one worker per supplied peer.
func NewWorkerPool(peers []Peer) *WorkerPool {
	p := &WorkerPool{}
	for i, peer := range peers {
		w := &Worker{id: i, peer: peer}
		p.workers = append(p.workers, w)
		p.idle = append(p.idle, w)
	}
	return p
}

// Assign binds a worker to the caller, priming it with source. If no
// worker is idle, the caller waits in strict FIFO order for the next
// worker freed by Free. Assign blocks until a worker is available,
// the priming round trip completes, or ctx is cancelled.
func (p *WorkerPool) Assign(ctx context.Context, source []byte, filename string, production bool) (*Worker, error) {
	w, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	if err := w.peer.Source(ctx, source, filename, production); err != nil {
		// Priming failed: treat the worker as still idle for the next
		// caller rather than leaving it stuck bound to nothing useful.
		p.Free(w)
		return nil, fmt.Errorf("priming worker %d: %w", w.id, err)
	}
	return w, nil
}

func (p *WorkerPool) acquire(ctx context.Context) (*Worker, error) {
	p.mu.Lock()
	if len(p.idle) > 0 {
		w := p.idle[0]
		p.idle = p.idle[1:]
		w.assigned = true
		p.mu.Unlock()
		return w, nil
	}
	waiter := make(chan *Worker, 1)
	p.waitQueue = append(p.waitQueue, waiter)
	p.mu.Unlock()

	select {
	case w := <-waiter:
		return w, nil
	case <-ctx.Done():
		p.mu.Lock()
		for i, c := range p.waitQueue {
			if c == waiter {
				p.waitQueue = append(p.waitQueue[:i], p.waitQueue[i+1:]...)
				p.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		p.mu.Unlock()
		// Free already dequeued this waiter, so a handoff is in flight.
		// Take the worker and put it back so it isn't stranded in the
		// abandoned channel.
		p.Free(<-waiter)
		return nil, ctx.Err()
	}
}

// Free releases a worker back to the pool. If waiters are queued, the
// oldest waiter (strict FIFO) is handed the worker directly instead of the
// worker going idle.
func (p *WorkerPool) Free(w *Worker) {
	p.mu.Lock()
	w.assigned = false
	if len(p.waitQueue) > 0 {
		waiter := p.waitQueue[0]
		p.waitQueue = p.waitQueue[1:]
		w.assigned = true
		p.mu.Unlock()
		waiter <- w
		return
	}
	p.idle = append(p.idle, w)
	p.mu.Unlock()
}

// Len reports the total number of workers in the pool.
func (p *WorkerPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Waiting reports the current number of queued waiters, for diagnostics
// and tests of FIFO ordering.
func (p *WorkerPool) Waiting() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waitQueue)
}
