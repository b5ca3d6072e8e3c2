// Package redisstub is a minimal RESP server covering the string commands the session
// storage uses.
package redisstub

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Server struct {
	listener net.Listener
	closed   chan struct{}

	mu sync.Mutex
	kv map[string]entry
}

type entry struct {
	value  string
	expiry time.Time
}

func Start() (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{listener: ln, closed: make(chan struct{}), kv: make(map[string]entry)}
	go s.serve()
	return s, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) Close() error {
	select {
	case <-s.closed:
		return nil
	default:
	}
	close(s.closed)
	return s.listener.Close()
}

// TTL reports the remaining lifetime of key; zero means no expiry or no key.
func (s *Server) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.kv[key]
	if !ok || e.expiry.IsZero() {
		return 0
	}
	return time.Until(e.expiry)
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			continue
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	for {
		args, err := readArray(reader)
		if err != nil {
			return
		}
		if err := s.dispatch(writer, args); err != nil {
			return
		}
		if err := writer.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(w *bufio.Writer, args []string) error {
	if len(args) == 0 {
		return writeError(w, "ERR empty command")
	}
	switch strings.ToUpper(args[0]) {
	case "PING":
		return writeSimpleString(w, "PONG")
	case "AUTH", "SELECT":
		return writeSimpleString(w, "OK")
	case "GET":
		if len(args) != 2 {
			return writeError(w, "ERR wrong number of arguments for 'get'")
		}
		value, ok := s.get(args[1])
		if !ok {
			return writeBulkNil(w)
		}
		return writeBulkString(w, value)
	case "SET":
		if len(args) < 3 {
			return writeError(w, "ERR wrong number of arguments for 'set'")
		}
		var ttl time.Duration
		for i := 3; i+1 < len(args); i += 2 {
			n, err := strconv.ParseInt(args[i+1], 10, 64)
			if err != nil {
				return writeError(w, "ERR value is not an integer or out of range")
			}
			switch strings.ToUpper(args[i]) {
			case "EX":
				ttl = time.Duration(n) * time.Second
			case "PX":
				ttl = time.Duration(n) * time.Millisecond
			}
		}
		s.set(args[1], args[2], ttl)
		return writeSimpleString(w, "OK")
	case "DEL":
		removed := 0
		s.mu.Lock()
		for _, key := range args[1:] {
			if _, ok := s.kv[key]; ok {
				delete(s.kv, key)
				removed++
			}
		}
		s.mu.Unlock()
		return writeInteger(w, int64(removed))
	default:
		return writeError(w, "ERR unknown command '"+args[0]+"'")
	}
}

func (s *Server) get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.kv[key]
	if !ok {
		return "", false
	}
	if !e.expiry.IsZero() && time.Now().After(e.expiry) {
		delete(s.kv, key)
		return "", false
	}
	return e.value, true
}

func (s *Server) set(key, value string, ttl time.Duration) {
	e := entry{value: value}
	if ttl > 0 {
		e.expiry = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.kv[key] = e
	s.mu.Unlock()
}

func readArray(r *bufio.Reader) ([]string, error) {
	prefix, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if prefix != '*' {
		return nil, fmt.Errorf("unexpected prefix %q", prefix)
	}
	length, err := readLength(r)
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, length)
	for i := 0; i < length; i++ {
		arg, err := readBulkString(r)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return args, nil
}

func readLength(r *bufio.Reader) (int, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimRight(line, "\r\n"))
}

func readBulkString(r *bufio.Reader) (string, error) {
	prefix, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	if prefix != '$' {
		return "", fmt.Errorf("unexpected prefix %q", prefix)
	}
	length, err := readLength(r)
	if err != nil {
		return "", err
	}
	if length < 0 {
		return "", nil
	}
	buf := make([]byte, length+2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf[:length]), nil
}

func writeSimpleString(w *bufio.Writer, value string) error {
	_, err := fmt.Fprintf(w, "+%s\r\n", value)
	return err
}

func writeBulkString(w *bufio.Writer, value string) error {
	_, err := fmt.Fprintf(w, "$%d\r\n%s\r\n", len(value), value)
	return err
}

func writeBulkNil(w *bufio.Writer) error {
	_, err := w.WriteString("$-1\r\n")
	return err
}

func writeInteger(w *bufio.Writer, value int64) error {
	_, err := fmt.Fprintf(w, ":%d\r\n", value)
	return err
}

func writeError(w *bufio.Writer, msg string) error {
	_, err := fmt.Fprintf(w, "-%s\r\n", msg)
	return err
}
