package pool_test

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haldring/syncd/internal/fsrv"
	"github.com/haldring/syncd/internal/pool"
	"github.com/haldring/syncd/internal/queue"
	"github.com/haldring/syncd/internal/synclog"
	"github.com/haldring/syncd/internal/transfer"
)

type recordingMetrics struct {
	mu      sync.Mutex
	results []string
}

func (m *recordingMetrics) RecordJob(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
}

func (m *recordingMetrics) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.results))
	copy(out, m.results)
	return out
}

func startPoolTestFileServer(t *testing.T, root string) string {
	t.Helper()
	log := synclog.New(io.Discard, io.Discard)
	srv, err := fsrv.Listen("127.0.0.1:0", log)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()

	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(root))
	t.Cleanup(func() {
		cancel()
		<-done
		_ = os.Chdir(old)
	})
	return srv.Addr().String()
}

func TestPoolDrainsQueueAndRecordsMetrics(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "dst"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "a.txt"), []byte("aaa"), 0o644))

	addr := startPoolTestFileServer(t, root)
	host, port := splitAddr(t, addr)

	q := queue.New(4)
	log := synclog.New(io.Discard, io.Discard)
	metrics := &recordingMetrics{}
	p := pool.New(q, log, 2*time.Second, nil, metrics)
	p.Start(2)

	q.Enqueue(transfer.Job{
		SourceHost: host, SourcePort: port, SourceDir: "/src",
		TargetHost: host, TargetPort: port, TargetDir: "/dst",
		Filename: "a.txt",
	})
	// A job naming a file that does not exist: one bad file must not
	// stop the pool from finishing its sibling job.
	q.Enqueue(transfer.Job{
		SourceHost: host, SourcePort: port, SourceDir: "/src",
		TargetHost: host, TargetPort: port, TargetDir: "/dst",
		Filename: "missing.txt",
	})

	// Shutdown now abandons anything still resident in the queue the
	// instant it's signaled, so wait for both jobs to actually finish
	// running before triggering it — otherwise this test would be
	// racing the very abandonment behavior it isn't testing.
	require.Eventually(t, func() bool {
		return len(metrics.snapshot()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	p.Shutdown()

	results := metrics.snapshot()
	assert.Len(t, results, 2)
	assert.Contains(t, results, "success")
	assert.Contains(t, results, "error")

	got, err := os.ReadFile(filepath.Join(root, "dst", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "aaa", string(got))
}

func TestShutdownAbandonsResidentJobsWithoutRunningThem(t *testing.T) {
	q := queue.New(4)
	log := synclog.New(io.Discard, io.Discard)
	metrics := &recordingMetrics{}
	p := pool.New(q, log, 2*time.Second, nil, metrics)

	job := transfer.Job{SourceHost: "127.0.0.1", SourcePort: 1, SourceDir: "/src", TargetHost: "127.0.0.1", TargetPort: 1, TargetDir: "/dst", Filename: "a.txt"}
	q.Enqueue(job)
	q.Enqueue(job)

	// Signal shutdown before any worker starts, so every worker's
	// very first Dequeue call already observes shutdown and abandons
	// the resident jobs instead of racing to grab one first.
	q.SignalShutdown()
	require.Equal(t, 2, q.Len(), "jobs stay resident until something actually drains them")

	p.Start(2)
	p.Shutdown()

	assert.Empty(t, metrics.snapshot(), "jobs resident at shutdown must never be recorded as run")
	assert.Equal(t, 0, q.Len(), "Shutdown must drain the abandoned jobs via DrainOnDestroy")
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}
