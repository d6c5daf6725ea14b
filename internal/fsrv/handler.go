package fsrv

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/haldring/syncd/internal/synclog"
	"github.com/haldring/syncd/internal/transfer"
)

// connHandler serves one accepted connection's command loop. The
// retained file descriptor a PUSH sequence opens lives on this
// struct, not in a package-level variable, so two connections can
// never collide on it by accident — the redesign §9 calls for.
type connHandler struct {
	conn net.Conn
	log  synclog.Logger

	pushFile *os.File
	pushPath string
}

func (h *connHandler) run(ctx context.Context) {
	defer h.conn.Close()
	defer h.closePush()

	r := bufio.NewReaderSize(h.conn, transfer.BufferSize)
	for {
		if ctx.Err() != nil {
			return
		}
		verb, err := readToken(r)
		if err != nil {
			return // EOF or connection error: loop ends, connection closes.
		}
		switch verb {
		case "LIST":
			if err := h.handleList(r); err != nil {
				h.log.Warnf("fsrv: LIST: %v", err)
				return
			}
		case "PULL":
			if err := h.handlePull(r); err != nil {
				h.log.Warnf("fsrv: PULL: %v", err)
				return
			}
		case "PUSH":
			if err := h.handlePush(r); err != nil {
				h.log.Warnf("fsrv: PUSH: %v", err)
				return
			}
		default:
			h.log.Warnf("fsrv: unknown command %q", verb)
			return
		}
	}
}

// readToken reads up to and including the next space or newline,
// returning the token text with that delimiter stripped.
func readToken(r *bufio.Reader) (string, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == ' ' || b == '\n' {
			return string(buf), nil
		}
		buf = append(buf, b)
	}
}

// readTokenDelim is like readToken but also reports which byte ended
// it, since PUSH's count field is terminated by a space (chunk
// follows in binary) or a newline (open/close, no payload follows).
func readTokenDelim(r *bufio.Reader) (tok string, delim byte, err error) {
	var buf []byte
	for {
		b, e := r.ReadByte()
		if e != nil {
			return "", 0, e
		}
		if b == ' ' || b == '\n' {
			return string(buf), b, nil
		}
		buf = append(buf, b)
	}
}

func (h *connHandler) handleList(r *bufio.Reader) error {
	dirTok, err := readTokenDelim2(r)
	if err != nil {
		return err
	}
	dir := transfer.StripLeadingSlash(strings.TrimSpace(dirTok))
	if dir == "" {
		dir = "."
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		// A LIST of a directory we cannot read still must terminate
		// with the sentinel; the caller's enumeration loop only cares
		// about names, and a missing/unreadable directory looks like
		// an empty one from here.
		_, werr := h.conn.Write([]byte(transfer.ListSentinel + "\n"))
		return werr
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if _, err := h.conn.Write([]byte(name + "\n")); err != nil {
			return err
		}
	}
	_, err = h.conn.Write([]byte(transfer.ListSentinel + "\n"))
	return err
}

// readTokenDelim2 reads the rest of a line (up to '\n') for verbs
// whose argument cannot contain an embedded space in this protocol's
// grammar (LIST's directory, PULL's path).
func readTokenDelim2(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"), nil
}

func (h *connHandler) handlePull(r *bufio.Reader) error {
	pathTok, err := readTokenDelim2(r)
	if err != nil {
		return err
	}
	path := transfer.StripLeadingSlash(strings.TrimSpace(pathTok))

	f, err := os.Open(path)
	if err != nil {
		msg := fmt.Sprintf("-1 %v\n", err)
		_, werr := h.conn.Write([]byte(msg))
		if werr != nil {
			return werr
		}
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		msg := fmt.Sprintf("-1 %v\n", err)
		_, werr := h.conn.Write([]byte(msg))
		if werr != nil {
			return werr
		}
		return nil
	}

	header := fmt.Sprintf("%d ", info.Size())
	if _, err := h.conn.Write([]byte(header)); err != nil {
		return err
	}
	_, err = io.Copy(h.conn, f)
	return err
}

func (h *connHandler) handlePush(r *bufio.Reader) error {
	pathTok, err := readTokenUntilSpace(r)
	if err != nil {
		return err
	}
	path := transfer.StripLeadingSlash(pathTok)

	countTok, delim, err := readTokenDelim(r)
	if err != nil {
		return err
	}
	k, err := strconv.ParseInt(countTok, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed PUSH length %q: %w", countTok, err)
	}

	switch {
	case k == -1:
		if delim != '\n' {
			return errors.New("malformed PUSH open frame")
		}
		h.closePush()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		h.pushFile = f
		h.pushPath = path
		return nil
	case k == 0:
		if delim != '\n' {
			return errors.New("malformed PUSH close frame")
		}
		h.closePush()
		return nil
	case k > 0:
		if delim != ' ' {
			return errors.New("malformed PUSH chunk frame")
		}
		if h.pushFile == nil || h.pushPath != path {
			// Discard the payload so the connection stays in sync,
			// even though there is nowhere to write it.
			_, _ = io.CopyN(io.Discard, r, k)
			return fmt.Errorf("PUSH chunk for %q with no open descriptor", path)
		}
		_, err := io.CopyN(h.pushFile, r, k)
		return err
	default:
		return fmt.Errorf("invalid PUSH length %d", k)
	}
}

// readTokenUntilSpace reads a token terminated by a single space,
// used for PUSH's path argument (which is always followed by the
// length field, never directly by a newline).
func readTokenUntilSpace(r *bufio.Reader) (string, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == ' ' {
			return string(buf), nil
		}
		buf = append(buf, b)
	}
}

func (h *connHandler) closePush() {
	if h.pushFile != nil {
		_ = h.pushFile.Close()
		h.pushFile = nil
		h.pushPath = ""
	}
}
