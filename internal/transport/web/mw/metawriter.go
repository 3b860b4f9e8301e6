package mw

import (
	"bufio"
	"errors"
	"net"
	"net/http"
)

// metaWriter запоминает статус и размер ответа для лога.
type metaWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (m *metaWriter) WriteHeader(code int) {
	if m.status == 0 {
		m.status = code
	}
	m.ResponseWriter.WriteHeader(code)
}

func (m *metaWriter) Write(b []byte) (int, error) {
	if m.status == 0 {
		m.status = http.StatusOK
	}
	n, err := m.ResponseWriter.Write(b)
	m.size += n
	return n, err
}

// Hijack нужен апгрейду до websocket.
func (m *metaWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := m.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	if m.status == 0 {
		m.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

func (m *metaWriter) Flush() {
	if f, ok := m.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (m *metaWriter) Unwrap() http.ResponseWriter { return m.ResponseWriter }
