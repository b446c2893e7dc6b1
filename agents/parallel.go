package agents

import (
	"context"
	"runtime"
	"sync"

	"github.com/pthm-cable/vectorsim/rules"
)

// parallelThreshold is the minimum cohort size to use the worker pool.
// Below this, single-threaded is faster due to goroutine overhead.
const parallelThreshold = 64

// decideSnapshot captures what one agent needs for PERCEIVE and DECIDE.
type decideSnapshot struct {
	Agent      Agent
	Perception Perception
}

// workChunk represents a range of snapshots for a worker to process.
type workChunk struct {
	ctx        context.Context
	start, end int
}

// parallelState holds the persistent decide-phase worker pool.
type parallelState struct {
	behavior   *Behavior
	snapshots  []decideSnapshot
	intents    []rules.Action
	numWorkers int

	workChan chan workChunk
	doneChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

func newParallelState(b *Behavior, workers int) *parallelState {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &parallelState{
		behavior:   b,
		numWorkers: workers,
		snapshots:  make([]decideSnapshot, 0, 512),
		intents:    make([]rules.Action, 0, 512),
	}
}

// startWorkers launches persistent worker goroutines.
func (p *parallelState) startWorkers() {
	if p.running {
		return
	}
	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// stopWorkers signals all workers to exit and waits for them.
func (p *parallelState) stopWorkers() {
	if !p.running {
		return
	}
	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

func (p *parallelState) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			p.computeChunk(chunk.ctx, chunk.start, chunk.end)
			p.doneChan <- struct{}{}
		}
	}
}

// reset prepares the snapshot buffer for a new cohort.
func (p *parallelState) reset() {
	p.snapshots = p.snapshots[:0]
}

func (p *parallelState) add(a Agent, perc Perception) {
	p.snapshots = append(p.snapshots, decideSnapshot{Agent: a, Perception: perc})
}

// decide runs PERCEIVE and DECIDE for every snapshot and returns the
// intents in snapshot order. The pool is only used when parallel is set
// and the cohort is large enough.
func (p *parallelState) decide(ctx context.Context, parallel bool) []rules.Action {
	n := len(p.snapshots)
	if cap(p.intents) < n {
		p.intents = make([]rules.Action, n)
	}
	p.intents = p.intents[:n]
	if n == 0 {
		return p.intents
	}

	if !parallel || n < parallelThreshold || p.numWorkers < 2 {
		p.computeChunk(ctx, 0, n)
		return p.intents
	}

	p.startWorkers()
	chunkSize := (n + p.numWorkers - 1) / p.numWorkers
	dispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		p.workChan <- workChunk{ctx: ctx, start: start, end: end}
		dispatched++
	}
	for i := 0; i < dispatched; i++ {
		<-p.doneChan
	}
	return p.intents
}

// computeChunk touches only its own snapshots, its own intents and the
// agent's own fact row.
func (p *parallelState) computeChunk(ctx context.Context, i0, i1 int) {
	for i := i0; i < i1; i++ {
		snap := &p.snapshots[i]
		p.behavior.Perceive(ctx, snap.Agent, snap.Perception)
		p.intents[i] = p.behavior.Decide(ctx, snap.Agent, snap.Perception)
	}
}
