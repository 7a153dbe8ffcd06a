package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chain-of-agents-be/internal/pkg/logger"
)

const (
	pathHealth  = "/health"
	pathProcess = "/process-stream"
	readSize    = 4096
)

// FrameHandler is called for every decoded frame after it has been applied
// to the run state.
type FrameHandler func(frame Frame, state *RunState)

// Client talks to a chain-of-agents server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
	logger     logger.ILogger
}

func NewClient(baseURL string, log logger.ILogger) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		// No overall timeout: a run may stream for minutes.
		HTTPClient: &http.Client{},
		logger:     log,
	}
}

// Health returns nil only when the server reports its inference backend
// ready.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+pathHealth, nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	c.authorize(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &TransportError{StatusCode: resp.StatusCode, Message: readMessage(resp.Body)}
	}
	return nil
}

func (c *Client) ProcessPDF(ctx context.Context, pdf []byte, filename, query string, onFrame FrameHandler) (*RunState, error) {
	return c.Process(ctx, Request{PDF: pdf, Filename: filename, Query: query}, onFrame)
}

func (c *Client) ProcessText(ctx context.Context, text, query string, onFrame FrameHandler) (*RunState, error) {
	return c.Process(ctx, Request{Text: text, Query: query}, onFrame)
}

// Process sends r and decodes the event stream as it arrives. The returned
// state is never nil once the request was sent, so partial results survive
// a transport failure.
func (c *Client) Process(ctx context.Context, r Request, onFrame FrameHandler) (*RunState, error) {
	body, contentType, err := r.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+pathProcess, body)
	if err != nil {
		return nil, fmt.Errorf("build process request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{StatusCode: resp.StatusCode, Message: readMessage(resp.Body)}
	}

	state := &RunState{}
	if err := c.consume(resp.Body, state, onFrame); err != nil {
		return state, err
	}
	return state, nil
}

func (c *Client) consume(body io.Reader, state *RunState, onFrame FrameHandler) error {
	dec := NewDecoder()
	buf := make([]byte, readSize)

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			frames, errs := dec.Feed(buf[:n])
			c.dispatch(frames, errs, state, onFrame)
		}
		if errors.Is(readErr, io.EOF) {
			frames, errs := dec.Close()
			c.dispatch(frames, errs, state, onFrame)
			return nil
		}
		if readErr != nil {
			return &TransportError{Err: fmt.Errorf("read event stream: %w", readErr)}
		}
	}
}

func (c *Client) dispatch(frames []Frame, errs []error, state *RunState, onFrame FrameHandler) {
	for _, err := range errs {
		c.logger.Warn("STREAM", "Skipping malformed frame", map[string]interface{}{"error": err.Error()})
	}
	for _, frame := range frames {
		if err := state.Apply(frame); err != nil {
			c.logger.Warn("STREAM", "Skipping unusable frame", map[string]interface{}{
				"type":  string(frame.Type),
				"error": err.Error(),
			})
			continue
		}
		if onFrame != nil {
			onFrame(frame, state)
		}
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

func readMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 1024))
	return strings.TrimSpace(string(data))
}
