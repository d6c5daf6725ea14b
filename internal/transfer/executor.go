package transfer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/haldring/syncd/internal/synclog"
)

// ErrSourceRejected is returned when the source replies "-1 <msg>" to
// a PULL request.
var ErrSourceRejected = errors.New("source rejected pull")

// Execute moves one file from job's source to its target, per the
// PULL/PUSH state machine. It never panics and never returns a value
// that would crash the calling worker: every failure path is reported
// through the returned error after a structured log line has already
// been written, so the worker can simply log-and-continue.
//
// threadID identifies the calling worker in the per-transfer log
// lines (the spec's "[thread_id]" field); it need not be an OS thread,
// just a stable label for the goroutine driving this job.
//
// The returned byte count is the number of bytes successfully pulled
// and pushed before any error, for callers (internal/history) that
// want a best-effort count even on a failed job; it is 0 on any error
// before the first chunk.
func Execute(job Job, log synclog.Logger, threadID string, dialTimeout time.Duration) (bytesMoved int64, err error) {
	src := synclog.Endpoint{Dir: job.SourceDir, Host: job.SourceHost, Port: job.SourcePort}
	dst := synclog.Endpoint{Dir: job.TargetDir, Host: job.TargetHost, Port: job.TargetPort}

	logEvent := func(op synclog.Op, result synclog.Result, detail string) {
		log.LogTransfer(synclog.TransferEvent{
			Time:     time.Now(),
			Source:   src,
			Target:   dst,
			ThreadID: threadID,
			Op:       op,
			Result:   result,
			Details:  detail,
		})
	}

	// Step 1 — connect to both sides.
	sourceConn, dialErr := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", job.SourceHost, job.SourcePort), dialTimeout)
	if dialErr != nil {
		logEvent(synclog.OpPull, synclog.ResultError, fmt.Sprintf("connect source: %v", dialErr))
		return 0, fmt.Errorf("connect source: %w", dialErr)
	}
	defer sourceConn.Close()

	targetConn, dialErr := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", job.TargetHost, job.TargetPort), dialTimeout)
	if dialErr != nil {
		logEvent(synclog.OpPush, synclog.ResultError, fmt.Sprintf("connect target: %v", dialErr))
		return 0, fmt.Errorf("connect target: %w", dialErr)
	}
	defer targetConn.Close()

	// Step 2 — PULL the file from source.
	if _, werr := sourceConn.Write([]byte(PullCommand(job.SourceDir, job.Filename))); werr != nil {
		logEvent(synclog.OpPull, synclog.ResultError, fmt.Sprintf("send PULL: %v", werr))
		return 0, fmt.Errorf("send PULL: %w", werr)
	}

	sourceReader := bufio.NewReaderSize(sourceConn, BufferSize)
	size, perr := ReadPullSizeHeader(sourceReader)
	if perr != nil {
		logEvent(synclog.OpPull, synclog.ResultError, fmt.Sprintf("parse PULL reply: %v", perr))
		return 0, fmt.Errorf("parse PULL reply: %w", perr)
	}
	if size < 0 {
		msg, _ := sourceReader.ReadString('\n')
		logEvent(synclog.OpPull, synclog.ResultError, fmt.Sprintf("%s%s", ErrSourceRejected, describeMessage(msg)))
		return 0, fmt.Errorf("%w: %s", ErrSourceRejected, msg)
	}

	// Step 3 — forward to target: open, chunked push, close.
	if _, werr := targetConn.Write([]byte(PushOpenCommand(job.TargetDir, job.Filename))); werr != nil {
		logEvent(synclog.OpPush, synclog.ResultError, fmt.Sprintf("send PUSH open: %v", werr))
		return 0, fmt.Errorf("send PUSH open: %w", werr)
	}

	var forwarded int64
	buf := make([]byte, BufferSize)
	for forwarded < size {
		want := size - forwarded
		if want > int64(len(buf)) {
			want = int64(len(buf))
		}
		n, readErr := io.ReadFull(sourceReader, buf[:want])
		if n > 0 {
			header := PushChunkHeader(job.TargetDir, job.Filename, n)
			if werr := writeFrame(targetConn, header, buf[:n]); werr != nil {
				logEvent(synclog.OpPush, synclog.ResultError, fmt.Sprintf("send chunk: %v", werr))
				return forwarded, fmt.Errorf("send chunk: %w", werr)
			}
			forwarded += int64(n)
		}
		if readErr != nil {
			logEvent(synclog.OpPull, synclog.ResultError, fmt.Sprintf("short read: got %d of %d bytes: %v", forwarded, size, readErr))
			return forwarded, fmt.Errorf("short read from source: %w", readErr)
		}
	}

	if _, werr := targetConn.Write([]byte(PushCloseCommand(job.TargetDir, job.Filename))); werr != nil {
		logEvent(synclog.OpPush, synclog.ResultError, fmt.Sprintf("send PUSH close: %v", werr))
		return forwarded, fmt.Errorf("send PUSH close: %w", werr)
	}

	logEvent(synclog.OpPull, synclog.ResultSuccess, fmt.Sprintf("%d bytes", size))
	logEvent(synclog.OpPush, synclog.ResultSuccess, fmt.Sprintf("%d bytes", size))
	return size, nil
}

// writeFrame sends header and payload as a single Write call where
// possible so the OS may coalesce them into one segment; the receiver
// does not care either way, since it parses the header first and then
// switches to a length-counted binary read of exactly len(payload)
// bytes. The whole payload is flushed before this call returns, which
// is the fragility §4.4 warns about: the next PUSH header must never
// be sent until every byte of this chunk has left the sender.
func writeFrame(w io.Writer, header string, payload []byte) error {
	combined := make([]byte, 0, len(header)+len(payload))
	combined = append(combined, header...)
	combined = append(combined, payload...)
	_, err := w.Write(combined)
	return err
}

func describeMessage(msg string) string {
	if msg == "" {
		return ""
	}
	return ": " + msg
}
