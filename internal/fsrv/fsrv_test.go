package fsrv

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haldring/syncd/internal/synclog"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
	return dir
}

func dialHandler(t *testing.T) (net.Conn, func()) {
	t.Helper()
	srv, err := Listen("127.0.0.1:0", synclog.New(io.Discard, io.Discard))
	require.NoError(t, err)

	ln := srv.listener
	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	require.NoError(t, err)

	serverSide, err := ln.Accept()
	require.NoError(t, err)
	h := &connHandler{conn: serverSide, log: srv.log}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.run(testContext(t))
	}()

	return conn, func() {
		conn.Close()
		<-done
		_ = srv.Close()
	}
}

func TestPushOpenChunkCloseWritesFile(t *testing.T) {
	root := chdirTemp(t)
	conn, stop := dialHandler(t)
	defer stop()

	_, err := conn.Write([]byte("PUSH out.txt -1\n"))
	require.NoError(t, err)
	_, err = conn.Write([]byte("PUSH out.txt 5 hello"))
	require.NoError(t, err)
	_, err = conn.Write([]byte("PUSH out.txt 0\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		b, err := os.ReadFile(filepath.Join(root, "out.txt"))
		return err == nil && string(b) == "hello"
	}, time.Second, 10*time.Millisecond)
}

func TestPullMissingFileReportsNegativeOne(t *testing.T) {
	chdirTemp(t)
	conn, stop := dialHandler(t)
	defer stop()

	_, err := conn.Write([]byte("PULL nope.txt\n"))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "-1 ")
}

func TestPullExistingFileRepliesSizeAndBody(t *testing.T) {
	root := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "have.txt"), []byte("payload"), 0o644))

	conn, stop := dialHandler(t)
	defer stop()

	_, err := conn.Write([]byte("PULL have.txt\n"))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	raw, err := r.ReadBytes(' ')
	require.NoError(t, err)
	assert.Equal(t, "7 ", string(raw))

	body := make([]byte, 7)
	_, err = io.ReadFull(r, body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
}

func TestListSkipsDotfilesAndEndsWithSentinel(t *testing.T) {
	root := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "visible.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "subdir"), 0o755))

	conn, stop := dialHandler(t)
	defer stop()

	_, err := conn.Write([]byte("LIST .\n"))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	var lines []string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = line[:len(line)-1]
		if line == "." {
			break
		}
		lines = append(lines, line)
	}
	assert.Equal(t, []string{"visible.txt"}, lines)
}
