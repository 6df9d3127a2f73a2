package ftpwire

import (
	"fmt"
	"io"
	"net"
	"time"
)

// dataReader wraps a data connection returned by RETR/LIST. Close
// drains the connection (if the caller didn't read to EOF) and then
// reads the control channel's closing response, surfacing a non-OK
// code as an error the way spec.md §4.2 step 4 requires ("any non-OK
// result marks the operation failed").
type dataReader struct {
	net.Conn
	client *Client
	closed bool
}

func (r *dataReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	closeErr := r.Conn.Close()
	respErr := r.client.finalResponse()
	if respErr != nil {
		return respErr
	}
	return closeErr
}

// Retr opens a data connection retrieving path, resuming at offset if
// offset > 0 via REST (spec.md's "range-resumed download"). The
// returned ReadCloser's Close must be called; the first call performs
// the bookkeeping finalResponse needs and later calls are no-ops.
func (c *Client) Retr(path string, offset int64) (io.ReadCloser, error) {
	if err := c.prelude(); err != nil {
		return nil, err
	}
	data, err := c.dialData()
	if err != nil {
		return nil, fmt.Errorf("ftpwire: RETR %s: data dial: %w", path, err)
	}
	if offset > 0 {
		if _, _, err := c.cmd(350, "REST %d", offset); err != nil {
			_ = data.Close()
			return nil, fmt.Errorf("ftpwire: REST %d: %w", offset, err)
		}
	}
	id, err := c.text.Cmd("RETR %s", path)
	if err != nil {
		_ = data.Close()
		return nil, err
	}
	c.text.StartResponse(id)
	code, msg, err := c.text.ReadResponse(-1)
	c.text.EndResponse(id)
	if err != nil {
		_ = data.Close()
		return nil, err
	}
	if code != 150 && code != 125 {
		_ = data.Close()
		return nil, &ProtocolError{Code: code, Message: msg}
	}
	return &dataReader{Conn: data, client: c}, nil
}

// dataWriter wraps a data connection opened for STOR/APPE. When
// LowSpeedLimit and LowSpeedTime are both positive, Write fails a call
// that hands over fewer than LowSpeedLimit bytes more than LowSpeedTime
// after the last call that handed over at least LowSpeedLimit bytes.
// The check compares each call's byte count, not an average rate, and
// runs only when Write is called: a Write blocked on the connection is
// not interrupted, and with a limit of one byte every non-empty call
// counts as progress.
type dataWriter struct {
	net.Conn
	client *Client
	closed bool

	limit    int64
	window   time.Duration
	lastGain time.Time
	written  int64
}

func (w *dataWriter) Write(p []byte) (int, error) {
	n, err := w.Conn.Write(p)
	if n > 0 {
		now := time.Now()
		if w.limit > 0 && w.window > 0 {
			if int64(n) >= w.limit || w.lastGain.IsZero() {
				w.lastGain = now
			} else if now.Sub(w.lastGain) > w.window {
				return n, fmt.Errorf("ftpwire: upload stalled below %d bytes/sec for %s", w.limit, w.window)
			}
		}
		w.written += int64(n)
	}
	return n, err
}

func (w *dataWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	closeErr := w.Conn.Close()
	respErr := w.client.finalResponse()
	if respErr != nil {
		return respErr
	}
	return closeErr
}

// Stor opens a data connection for upload. appendMode uses APPE
// (spec.md §4.3 "resumed write(offset=pos>0): worker starts with
// append mode engaged").
func (c *Client) Stor(path string, appendMode bool) (io.WriteCloser, error) {
	if err := c.prelude(); err != nil {
		return nil, err
	}
	data, err := c.dialData()
	if err != nil {
		return nil, fmt.Errorf("ftpwire: STOR %s: data dial: %w", path, err)
	}
	verb := "STOR"
	if appendMode {
		verb = "APPE"
	}
	id, err := c.text.Cmd("%s %s", verb, path)
	if err != nil {
		_ = data.Close()
		return nil, err
	}
	c.text.StartResponse(id)
	code, msg, err := c.text.ReadResponse(-1)
	c.text.EndResponse(id)
	if err != nil {
		_ = data.Close()
		return nil, err
	}
	if code != 150 && code != 125 {
		_ = data.Close()
		return nil, &ProtocolError{Code: code, Message: msg}
	}
	w := &dataWriter{Conn: data, client: c}
	if c.opt != nil {
		w.limit = c.opt.LowSpeedLimit
		w.window = c.opt.LowSpeedTime
	}
	return w, nil
}

// List opens a data connection for the configured listing command
// (default "LIST -a", spec.md §6) against dirPath and returns the raw
// listing bytes. Parsing the listing into directory entries is an
// external collaborator (internal/listing), not this package's
// concern.
func (c *Client) List(dirPath string) ([]byte, error) {
	if err := c.prelude(); err != nil {
		return nil, err
	}
	data, err := c.dialData()
	if err != nil {
		return nil, fmt.Errorf("ftpwire: LIST: data dial: %w", err)
	}
	cmdLine := c.opt.ListCommand
	if cmdLine == "" {
		cmdLine = "LIST -a"
	}
	id, err := c.text.Cmd("%s %s", cmdLine, dirPath)
	if err != nil {
		_ = data.Close()
		return nil, err
	}
	c.text.StartResponse(id)
	code, msg, err := c.text.ReadResponse(-1)
	c.text.EndResponse(id)
	if err != nil {
		_ = data.Close()
		return nil, err
	}
	if code != 150 && code != 125 {
		_ = data.Close()
		return nil, &ProtocolError{Code: code, Message: msg}
	}
	out, readErr := io.ReadAll(data)
	_ = data.Close()
	if finalErr := c.finalResponse(); finalErr != nil {
		return out, finalErr
	}
	return out, readErr
}
