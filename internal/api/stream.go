package api

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrIdleTimeout is returned by Next when no frame arrived in time.
	ErrIdleTimeout = errors.New("stream idle timeout")
	// ErrStreamClosed is returned by Next after Close.
	ErrStreamClosed = errors.New("stream closed")
)

// Frame is one dispatched server-sent event.
type Frame struct {
	Event string
	Data  []byte
}

type frameResult struct {
	frame Frame
	err   error
}

// Stream reads server-sent events from one open chat_stream response.
// Next must not be called concurrently; Close may be called from anywhere
// and any number of times.
type Stream struct {
	frames    chan frameResult
	done      chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// OpenStream starts a query on the backend and returns once the response
// headers arrived.
func (c *Client) OpenStream(ctx context.Context, sessionID, query string) (*Stream, error) {
	params := url.Values{}
	params.Set("session_id", sessionID)
	params.Set("query", query)
	endpoint := c.baseURL + "/chat_stream?" + params.Encode()

	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel()
		return nil, &NetworkError{Op: "open stream", Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.stream.Do(req)
	if err != nil {
		cancel()
		return nil, &NetworkError{Op: "open stream", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		cancel()
		return nil, &NetworkError{
			Op:     "open stream",
			Status: resp.StatusCode,
			Err:    errors.New(compactSingleLine(string(body), 240)),
		}
	}

	s := &Stream{
		frames: make(chan frameResult, 64),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	c.log.Debug().Str("session_id", sessionID).Msg("stream opened")
	go s.pump(resp.Body)
	return s, nil
}

// Next returns the next frame in arrival order. It returns io.EOF when the
// server ended the stream, ErrIdleTimeout when ctx expired, and
// ErrStreamClosed after Close.
func (s *Stream) Next(ctx context.Context) (Frame, error) {
	select {
	case <-s.done:
		return Frame{}, ErrStreamClosed
	default:
	}
	select {
	case r, ok := <-s.frames:
		if !ok {
			return Frame{}, ErrStreamClosed
		}
		return r.frame, r.err
	case <-s.done:
		return Frame{}, ErrStreamClosed
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Frame{}, ErrIdleTimeout
		}
		return Frame{}, ctx.Err()
	}
}

// Close aborts the request. Only the first call has an effect.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()
	})
	return nil
}

func (s *Stream) emit(r frameResult) bool {
	select {
	case s.frames <- r:
		return true
	case <-s.done:
		return false
	}
}

func (s *Stream) pump(body io.ReadCloser) {
	defer body.Close()
	defer close(s.frames)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var eventName string
	var dataLines []string
	flush := func() bool {
		if len(dataLines) == 0 {
			eventName = ""
			return true
		}
		if eventName == "" {
			eventName = "message"
		}
		ok := s.emit(frameResult{frame: Frame{
			Event: eventName,
			Data:  []byte(strings.Join(dataLines, "\n")),
		}})
		eventName = ""
		dataLines = nil
		return ok
	}

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		switch {
		case line == "":
			if !flush() {
				return
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			part := strings.TrimPrefix(line, "data:")
			part = strings.TrimPrefix(part, " ")
			dataLines = append(dataLines, part)
		}
	}
	if !flush() {
		return
	}
	if err := scanner.Err(); err != nil {
		s.emit(frameResult{err: errors.Wrap(err, "read stream")})
		return
	}
	s.emit(frameResult{err: io.EOF})
}
