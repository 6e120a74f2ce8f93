package application

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"rpc-proxy/internal/application/port"
	"rpc-proxy/internal/domain/entity"
	domainRepo "rpc-proxy/internal/domain/repository"
	domainService "rpc-proxy/internal/domain/service"
)

type stubRegistry map[string]entity.NetworkEndpoint

func (r stubRegistry) Resolve(network string) (entity.NetworkEndpoint, bool) {
	e, ok := r[network]
	return e, ok
}

func (r stubRegistry) Networks() []string {
	out := make([]string, 0, len(r))
	for n := range r {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

type stubFailures struct {
	mu      sync.Mutex
	records []domainRepo.UpstreamFailure
}

func (f *stubFailures) RecordFailure(network, protocol, reason string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	first := true
	for _, r := range f.records {
		if r.Network == network && r.Protocol == protocol {
			first = false
		}
	}
	f.records = append(f.records, domainRepo.UpstreamFailure{Network: network, Protocol: protocol, Reason: reason, Count: 1})
	return first
}

func (f *stubFailures) RecentFailures() map[string]domainRepo.UpstreamFailure {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]domainRepo.UpstreamFailure, len(f.records))
	for _, r := range f.records {
		out[r.Network+"/"+r.Protocol] = r
	}
	return out
}

func (f *stubFailures) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type frame struct {
	messageType domainService.MessageType
	data        []byte
	err         error
}

type sentClose struct {
	code   int
	reason string
}

// fakeSocket is an in-memory Socket. Frames pushed with deliver are returned by
// ReadMessage in order; writes are published on written.
type fakeSocket struct {
	inbound chan frame
	written chan frame
	closed  chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	closes    []sentClose
	pings     int
	pingErr   error
	writeErr  error
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		inbound: make(chan frame, 64),
		written: make(chan frame, 64),
		closed:  make(chan struct{}),
	}
}

func (s *fakeSocket) deliver(messageType domainService.MessageType, data string) {
	s.inbound <- frame{messageType: messageType, data: []byte(data)}
}

func (s *fakeSocket) fail(err error) {
	s.inbound <- frame{err: err}
}

func (s *fakeSocket) ReadMessage() (domainService.MessageType, []byte, error) {
	select {
	case f := <-s.inbound:
		if f.err != nil {
			return 0, nil, f.err
		}
		return f.messageType, f.data, nil
	case <-s.closed:
		return 0, nil, domainService.ErrSocketClosed
	}
}

func (s *fakeSocket) WriteMessage(messageType domainService.MessageType, data []byte) error {
	if s.isClosed() {
		return domainService.ErrSocketClosed
	}
	s.mu.Lock()
	err := s.writeErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.written <- frame{messageType: messageType, data: append([]byte(nil), data...)}
	return nil
}

func (s *fakeSocket) Ping(time.Time) error {
	if s.isClosed() {
		return domainService.ErrSocketClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pingErr != nil {
		return s.pingErr
	}
	s.pings++
	return nil
}

func (s *fakeSocket) SendClose(code int, reason string, _ time.Time) error {
	if s.isClosed() {
		return domainService.ErrSocketClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes = append(s.closes, sentClose{code: code, reason: reason})
	return nil
}

func (s *fakeSocket) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSocket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeSocket) sentCloses() []sentClose {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentClose(nil), s.closes...)
}

func (s *fakeSocket) pingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pings
}

type stubDialer struct {
	socket domainService.Socket
	err    error

	mu   sync.Mutex
	urls []string
}

func (d *stubDialer) Dial(_ context.Context, url string, _ http.Header) (domainService.Socket, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return d.socket, nil
}

func (d *stubDialer) dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

type stubMetrics struct {
	port.NopMetrics

	mu       sync.Mutex
	opened   int
	closed   []port.SessionState
	relayed  map[string]int
	forwards []string
}

func newStubMetrics() *stubMetrics {
	return &stubMetrics{relayed: map[string]int{}}
}

func (m *stubMetrics) ObserveForward(_ string, outcome string, _ int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forwards = append(m.forwards, outcome)
}

func (m *stubMetrics) SessionOpened(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened++
}

func (m *stubMetrics) SessionClosed(_ string, state port.SessionState, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = append(m.closed, state)
}

func (m *stubMetrics) MessageRelayed(_ string, direction string, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relayed[direction]++
}
