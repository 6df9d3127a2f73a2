package vfsio

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/rclone/ftpfs/internal/config"
	"github.com/rclone/ftpfs/internal/ftpwire"
)

// fakeFTPServer is a minimal RFC 959 control/data server, just enough
// of one to dial, log in, RETR with REST, and STOR/APPE against — the
// same shape of harness the pack's other_examples FTP clients are
// exercised against in their own tests, adapted here to drive
// SharedConn and the write pipeline end to end without a real server.
type fakeFTPServer struct {
	ln net.Listener

	mu       sync.Mutex
	file     []byte // content RETR serves
	uploaded []byte // last STOR/APPE payload received
}

func newFakeFTPServer(t *testing.T) *fakeFTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeFTPServer{ln: ln}
	go s.acceptLoop()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *fakeFTPServer) addr() string { return s.ln.Addr().String() }

func (s *fakeFTPServer) setFile(b []byte) {
	s.mu.Lock()
	s.file = b
	s.mu.Unlock()
}

func (s *fakeFTPServer) uploadedBytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.uploaded...)
}

func (s *fakeFTPServer) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serve(conn)
	}
}

func (s *fakeFTPServer) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	fmt.Fprintf(conn, "220 fake ready\r\n")

	var restOffset int64
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		upper := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(upper, "USER"):
			fmt.Fprintf(conn, "331 need password\r\n")
		case strings.HasPrefix(upper, "PASS"):
			fmt.Fprintf(conn, "230 logged in\r\n")
		case strings.HasPrefix(upper, "TYPE"):
			fmt.Fprintf(conn, "200 type set\r\n")
		case strings.HasPrefix(upper, "OPTS"):
			fmt.Fprintf(conn, "200 utf8 ok\r\n")
		case strings.HasPrefix(upper, "REST"):
			fields := strings.Fields(line)
			if len(fields) == 2 {
				restOffset, _ = strconv.ParseInt(fields[1], 10, 64)
			}
			fmt.Fprintf(conn, "350 rest ok\r\n")
		case strings.HasPrefix(upper, "PASV"):
			dl, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				fmt.Fprintf(conn, "425 cannot open data connection\r\n")
				continue
			}
			_, portStr, _ := net.SplitHostPort(dl.Addr().String())
			port, _ := strconv.Atoi(portStr)
			p1, p2 := port/256, port%256
			fmt.Fprintf(conn, "227 Entering Passive Mode (127,0,0,1,%d,%d)\r\n", p1, p2)
			go s.handlePasv(dl, conn, &restOffset)
		case strings.HasPrefix(upper, "RETR"), strings.HasPrefix(upper, "STOR"), strings.HasPrefix(upper, "APPE"):
			fmt.Fprintf(conn, "150 opening data connection\r\n")
		case strings.HasPrefix(upper, "QUIT"):
			fmt.Fprintf(conn, "221 bye\r\n")
			return
		case strings.HasPrefix(upper, "SITE"), strings.HasPrefix(upper, "MKD"), strings.HasPrefix(upper, "RMD"),
			strings.HasPrefix(upper, "DELE"), strings.HasPrefix(upper, "RNFR"), strings.HasPrefix(upper, "RNTO"):
			fmt.Fprintf(conn, "250 ok\r\n")
		case strings.HasPrefix(upper, "SIZE"):
			s.mu.Lock()
			n := len(s.file)
			s.mu.Unlock()
			fmt.Fprintf(conn, "213 %d\r\n", n)
		default:
			fmt.Fprintf(conn, "500 unknown command\r\n")
		}
	}
}

func (s *fakeFTPServer) handlePasv(dl net.Listener, ctrl net.Conn, restOffset *int64) {
	defer dl.Close()
	data, err := dl.Accept()
	if err != nil {
		return
	}
	defer data.Close()

	s.mu.Lock()
	content := s.file
	s.mu.Unlock()

	// If setFile gave the server content, the data connection serves
	// it as a RETR; otherwise it is read as an upload into uploaded.
	// Tests exercise RETR and STOR on separate fakeFTPServer instances.
	if content != nil {
		off := *restOffset
		if off < 0 || off > int64(len(content)) {
			off = 0
		}
		_, _ = data.Write(content[off:])
		fmt.Fprintf(ctrl, "226 transfer complete\r\n")
		return
	}

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := data.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	s.mu.Lock()
	s.uploaded = buf
	s.mu.Unlock()
	fmt.Fprintf(ctrl, "226 transfer complete\r\n")
}

func dialFake(t *testing.T, s *fakeFTPServer) *ftpwire.Client {
	t.Helper()
	opt := config.DefaultOptions()
	opt.Host = s.addr()
	opt.User = "anonymous"
	opt.Pass = "x"
	c, err := ftpwire.Dial(opt)
	if err != nil {
		t.Fatalf("dial fake server: %v", err)
	}
	return c
}
