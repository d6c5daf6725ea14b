// Package dispatch implements the command dispatcher: the console
// session loop that turns "add"/"cancel"/"shutdown" lines into
// registry mutations, file enumeration and queue submissions.
package dispatch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haldring/syncd/internal/queue"
	"github.com/haldring/syncd/internal/registry"
	"github.com/haldring/syncd/internal/synclog"
	"github.com/haldring/syncd/internal/transfer"
)

// DirSpec is a parsed "<dir>@<host>:<port>" grammar element.
type DirSpec struct {
	Dir  string
	Host string
	Port int
}

// ParseDirSpec parses "<dir>@<host>:<port>". Both the '@' and the
// final ':' are required; anything else is a syntax error.
func ParseDirSpec(s string) (DirSpec, error) {
	at := strings.LastIndex(s, "@")
	if at < 0 {
		return DirSpec{}, fmt.Errorf("malformed dir spec %q: missing '@'", s)
	}
	dir, hostport := s[:at], s[at+1:]
	if dir == "" {
		return DirSpec{}, fmt.Errorf("malformed dir spec %q: empty directory", s)
	}
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return DirSpec{}, fmt.Errorf("malformed dir spec %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return DirSpec{}, fmt.Errorf("malformed dir spec %q: bad port", s)
	}
	return DirSpec{Dir: dir, Host: host, Port: port}, nil
}

// AuthGate is satisfied by internal/consoleauth's Gate. It is an
// interface here so dispatch does not import consoleauth directly —
// the binary wires them together.
type AuthGate interface {
	// Required reports whether a session must authenticate before
	// any command is dispatched.
	Required() bool
	// Check validates a bare AUTH token line's argument.
	Check(token string) bool
}

// Dispatcher owns the registry and queue shared across every console
// session and file-enumeration call.
type Dispatcher struct {
	reg  *registry.Registry
	q    *queue.Queue
	log  synclog.Logger
	gate AuthGate
	ctx  context.Context

	dialTimeout time.Duration
}

// New returns a Dispatcher. ctx is the process lifecycle context:
// when it is canceled, the shutdown command has effectively already
// happened elsewhere and sessions are expected to be winding down.
func New(ctx context.Context, reg *registry.Registry, q *queue.Queue, log synclog.Logger, gate AuthGate, dialTimeout time.Duration) *Dispatcher {
	return &Dispatcher{reg: reg, q: q, log: log, gate: gate, ctx: ctx, dialTimeout: dialTimeout}
}

// ShutdownFunc is called once when a console issues `shutdown`. The
// binary wires this to its own process-lifetime cancel function.
type ShutdownFunc func()

// Serve accepts console connections on ln until ctx is canceled,
// running one session per connection — the "ephemeral dispatcher
// thread per accepted console session" the concurrency model allows.
func (d *Dispatcher) Serve(ctx context.Context, ln net.Listener, shutdown ShutdownFunc) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go d.session(conn, shutdown)
	}
}

// session runs the newline-terminated command loop for one console
// connection until EOF, a protocol error, or `shutdown`.
func (d *Dispatcher) session(conn net.Conn, shutdown ShutdownFunc) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	authenticated := d.gate == nil || !d.gate.Required()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				d.log.Warnf("dispatch: session read: %v", err)
			}
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		if !authenticated {
			if strings.HasPrefix(line, "AUTH ") {
				token := strings.TrimPrefix(line, "AUTH ")
				if d.gate.Check(token) {
					authenticated = true
					writeLine(conn, "OK")
					continue
				}
				writeLine(conn, "Error: authentication failed")
				return
			}
			writeLine(conn, "Error: authentication required")
			return
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "add":
			d.handleAdd(conn, fields)
		case "cancel":
			d.handleCancel(conn, fields)
		case "shutdown":
			writeLine(conn, "Shutting down …")
			if shutdown != nil {
				shutdown()
			}
			return
		default:
			writeLine(conn, fmt.Sprintf("Error: unknown command %q", fields[0]))
		}
	}
}

func (d *Dispatcher) handleAdd(conn net.Conn, fields []string) {
	if len(fields) != 3 {
		writeLine(conn, "Error: usage: add <source_spec> <target_spec>")
		return
	}
	src, err := ParseDirSpec(fields[1])
	if err != nil {
		writeLine(conn, "Error: "+err.Error())
		return
	}
	dst, err := ParseDirSpec(fields[2])
	if err != nil {
		writeLine(conn, "Error: "+err.Error())
		return
	}
	writeLine(conn, d.AddPair(src, dst))
}

// AddPair performs the registry.find / registry.add / enumerate /
// enqueue sequence `add` names in spec §4.6, returning the same reply
// text a console session would receive. It is exported so the config
// loader can replay startup sync pairs through the identical path a
// console `add` command takes.
func (d *Dispatcher) AddPair(src, dst DirSpec) string {
	key := registry.Key{SourceHost: src.Host, SourcePort: src.Port, SourceDir: src.Dir}
	if existing, ok := d.reg.Find(key); ok && existing.Active {
		return fmt.Sprintf("Already in queue: %s@%s:%d", src.Dir, src.Host, src.Port)
	}

	pair := registry.Pair{
		Key:        key,
		TargetHost: dst.Host,
		TargetPort: dst.Port,
		TargetDir:  dst.Dir,
	}
	status := d.reg.Add(pair)
	switch status {
	case registry.StatusConflict:
		return fmt.Sprintf("Already in queue: %s@%s:%d", src.Dir, src.Host, src.Port)
	case registry.StatusStorageKO:
		return "Error: registry storage failure"
	}

	names, err := transfer.ListFiles(src.Host, src.Port, src.Dir, d.dialTimeout)
	if err != nil {
		return fmt.Sprintf("Error: enumerate %s: %v", src.Dir, err)
	}

	for _, name := range names {
		job := transfer.Job{
			ID:         uuid.New(),
			SourceHost: src.Host,
			SourcePort: src.Port,
			SourceDir:  src.Dir,
			TargetHost: dst.Host,
			TargetPort: dst.Port,
			TargetDir:  dst.Dir,
			Filename:   name,
		}
		if !d.q.Enqueue(job) {
			return "Error: queue shutting down, enumeration aborted"
		}
	}

	return fmt.Sprintf("Added %s@%s:%d -> %s@%s:%d (%d files)",
		src.Dir, src.Host, src.Port, dst.Dir, dst.Host, dst.Port, len(names))
}

func (d *Dispatcher) handleCancel(conn net.Conn, fields []string) {
	if len(fields) != 2 {
		writeLine(conn, "Error: usage: cancel <source_spec>")
		return
	}
	src, err := ParseDirSpec(fields[1])
	if err != nil {
		writeLine(conn, "Error: "+err.Error())
		return
	}
	key := registry.Key{SourceHost: src.Host, SourcePort: src.Port, SourceDir: src.Dir}
	if d.reg.Deactivate(key) == registry.StatusOK {
		writeLine(conn, fmt.Sprintf("Synchronization stopped for %s@%s:%d", src.Dir, src.Host, src.Port))
		return
	}
	writeLine(conn, fmt.Sprintf("Directory not being synchronized: %s@%s:%d", src.Dir, src.Host, src.Port))
}

func writeLine(w io.Writer, s string) {
	_, _ = io.WriteString(w, s+"\n")
}
