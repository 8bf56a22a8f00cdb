//go:build !linux

package ws

import (
	"net"
	"sync"
	"time"
)

// Epoll is the portable fallback used on macOS and Windows for local
// development. Every registered connection is reported ready, one read at a
// time; the server's read deadline bounds how long a worker blocks on an
// idle connection.
type Epoll struct {
	mu      sync.Mutex
	rearm   map[net.Conn]chan struct{}
	readyCh chan net.Conn
	done    chan struct{}
}

// NewEpoll creates the fallback poller.
func NewEpoll() (*Epoll, error) {
	return &Epoll{
		rearm:   make(map[net.Conn]chan struct{}),
		readyCh: make(chan net.Conn, 128),
		done:    make(chan struct{}),
	}, nil
}

// Add starts reporting conn as ready.
func (e *Epoll) Add(conn net.Conn) error {
	ch := make(chan struct{}, 1)
	e.mu.Lock()
	e.rearm[conn] = ch
	e.mu.Unlock()

	go e.monitor(conn, ch)
	return nil
}

func (e *Epoll) monitor(conn net.Conn, rearm chan struct{}) {
	for {
		select {
		case e.readyCh <- conn:
		case <-e.done:
			return
		}
		select {
		case _, ok := <-rearm:
			if !ok {
				return
			}
		case <-e.done:
			return
		}
	}
}

// Rearm reports conn ready again once the previous read finished.
func (e *Epoll) Rearm(conn net.Conn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.rearm[conn]
	if !ok {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Remove stops reporting conn.
func (e *Epoll) Remove(conn net.Conn) error {
	e.mu.Lock()
	if ch, ok := e.rearm[conn]; ok {
		close(ch)
		delete(e.rearm, conn)
	}
	e.mu.Unlock()
	return nil
}

// Wait returns the ready connections, blocking up to timeoutMs (-1 for
// ever).
func (e *Epoll) Wait(timeoutMs int) ([]net.Conn, error) {
	var timeout <-chan time.Time
	if timeoutMs >= 0 {
		timer := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
		defer timer.Stop()
		timeout = timer.C
	}

	var first net.Conn
	select {
	case first = <-e.readyCh:
	case <-timeout:
		return nil, nil
	case <-e.done:
		return nil, net.ErrClosed
	}

	conns := []net.Conn{first}
	for {
		select {
		case conn := <-e.readyCh:
			conns = append(conns, conn)
		default:
			return conns, nil
		}
	}
}

// Close stops all monitors.
func (e *Epoll) Close() error {
	close(e.done)
	return nil
}
