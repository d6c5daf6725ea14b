// Package pool implements the bounded worker pool that drains the
// manager's job queue and drives each job through the transfer
// executor, one file at a time per worker.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haldring/syncd/internal/history"
	"github.com/haldring/syncd/internal/queue"
	"github.com/haldring/syncd/internal/synclog"
	"github.com/haldring/syncd/internal/transfer"
)

// MetricsRecorder receives one call per finished job. Implemented by
// internal/adminhttp's Metrics type; the interface lives here so this
// package never has to import adminhttp.
type MetricsRecorder interface {
	RecordJob(result string)
}

// Pool owns a fixed number of worker goroutines, each taking jobs from
// the same *queue.Queue and running them through transfer.Execute. A
// worker that hits a transfer error logs it and moves on to the next
// job; one bad file never stops the pool, per the per-file error
// isolation the component design requires.
type Pool struct {
	q   *queue.Queue
	log synclog.Logger

	ledger  *history.Ledger
	metrics MetricsRecorder

	dialTimeout time.Duration

	wg sync.WaitGroup
}

// New returns a Pool draining q. dialTimeout bounds how long each
// worker waits to connect to a job's source and target before giving
// up on that one file. ledger and metrics are both optional (nil is
// fine) — neither the sqlite history ledger nor the Prometheus
// recorder is in the core contract; the pool runs identically without
// them.
func New(q *queue.Queue, log synclog.Logger, dialTimeout time.Duration, ledger *history.Ledger, metrics MetricsRecorder) *Pool {
	return &Pool{q: q, log: log, dialTimeout: dialTimeout, ledger: ledger, metrics: metrics}
}

// Start launches the workers. It returns immediately; call Shutdown to
// stop them once the queue has been told to shut down.
func (p *Pool) Start(size int) {
	if size <= 0 {
		size = 1
	}
	for i := 0; i < size; i++ {
		id := fmt.Sprintf("worker-%d", i)
		p.wg.Add(1)
		go p.run(id)
	}
}

func (p *Pool) run(id string) {
	defer p.wg.Done()
	for {
		raw, ok := p.q.Dequeue()
		if !ok {
			return
		}
		job, ok := raw.(transfer.Job)
		if !ok {
			p.log.Errorf("%s: dequeued value of unexpected type %T, discarding", id, raw)
			continue
		}
		p.runOne(id, job)
	}
}

func (p *Pool) runOne(id string, job transfer.Job) {
	started := time.Now()
	bytesMoved, err := transfer.Execute(job, p.log, id, p.dialTimeout)
	ended := time.Now()

	outcome := "success"
	errDetail := ""
	if err != nil {
		outcome = "error"
		errDetail = err.Error()
		p.log.Warnf("%s: job %s failed: %v", id, job.ID, err)
	}

	if p.metrics != nil {
		p.metrics.RecordJob(outcome)
	}
	if p.ledger != nil {
		rec := history.Record{
			JobID:       job.ID,
			SourceDir:   job.SourceDir,
			SourceHost:  job.SourceHost,
			SourcePort:  job.SourcePort,
			TargetDir:   job.TargetDir,
			TargetHost:  job.TargetHost,
			TargetPort:  job.TargetPort,
			Filename:    job.Filename,
			Bytes:       bytesMoved,
			StartedAt:   started,
			EndedAt:     ended,
			Outcome:     outcome,
			ErrorDetail: errDetail,
		}
		if werr := p.ledger.Append(context.Background(), rec); werr != nil {
			p.log.Warnf("%s: history append: %v", id, werr)
		}
	}
}

// Shutdown signals the queue to stop accepting and releasing work and
// waits for every worker to return. Shutdown latency is bounded by the
// longest individual in-flight transfer, never by queue depth: workers
// abandon any jobs still resident the moment shutdown is signaled, so
// once every worker has returned, Shutdown frees whatever was
// abandoned via DrainOnDestroy instead of letting a worker run it.
func (p *Pool) Shutdown() {
	p.q.SignalShutdown()
	p.wg.Wait()
	if abandoned := p.q.DrainOnDestroy(); len(abandoned) > 0 {
		p.log.Warnf("shutdown: abandoned %d queued job(s) without running them", len(abandoned))
	}
}
