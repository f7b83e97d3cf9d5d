package dap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"
)

// ErrClientClosed is returned for requests issued after Close.
var ErrClientClosed = errors.New("dap client closed")

// Client is a DAP client that communicates with a debug adapter.
type Client struct {
	transport Transport
	seq       int64
	pending   map[int]*pendingRequest
	pendingMu sync.Mutex
	handlers  eventHandlers
	handlerMu sync.RWMutex
	done      chan struct{}
	closeOnce sync.Once
	err       error
	errMu     sync.RWMutex
}

// pendingRequest tracks a pending request awaiting response.
type pendingRequest struct {
	done      chan struct{}
	closeOnce sync.Once
	response  *Response
	err       error
}

func (p *pendingRequest) close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}

type eventHandlers struct {
	onInitialized  func()
	onStopped      func(StoppedEventBody)
	onTerminated   func(TerminatedEventBody)
	onBreakpoint   func(BreakpointEventBody)
	onLoadedSource func(LoadedSourceEventBody)
	onProcess      func(ProcessEventBody)
	onAny          func(Event)
}

// NewClient creates a new DAP client with the given transport.
func NewClient(transport Transport) *Client {
	c := &Client{
		transport: transport,
		pending:   make(map[int]*pendingRequest),
		done:      make(chan struct{}),
	}
	go c.receiveLoop()
	return c
}

// Close closes the client and underlying transport.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return c.transport.Close()
}

// Error returns any error that occurred during receive.
func (c *Client) Error() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()
	return c.err
}

// NextSeq reserves the sequence number of the next request. Callers that
// need to correlate a request with state kept outside the client pass the
// reserved number to one of the *WithSeq methods.
func (c *Client) NextSeq() int {
	return int(atomic.AddInt64(&c.seq, 1))
}

func (c *Client) receiveLoop() {
	for {
		msg, err := c.transport.Receive()
		if err != nil {
			select {
			case <-c.done:
				err = ErrClientClosed
			default:
			}

			c.errMu.Lock()
			c.err = err
			c.errMu.Unlock()

			c.pendingMu.Lock()
			for _, req := range c.pending {
				req.err = err
				req.close()
			}
			c.pending = make(map[int]*pendingRequest)
			c.pendingMu.Unlock()
			return
		}

		select {
		case <-c.done:
			return
		default:
		}

		c.handleMessage(msg)
	}
}

// handleMessage dispatches a received message on its "type" field.
func (c *Client) handleMessage(msg *Message) {
	switch gjson.GetBytes(msg.Content, "type").String() {
	case "response":
		c.handleResponse(msg.Content)
	case "event":
		c.handleEvent(msg.Content)
	}
}

func (c *Client) handleResponse(content []byte) {
	var resp Response
	if err := json.Unmarshal(content, &resp); err != nil {
		return
	}

	c.pendingMu.Lock()
	req, ok := c.pending[resp.RequestSeq]
	if ok {
		delete(c.pending, resp.RequestSeq)
	}
	c.pendingMu.Unlock()

	if ok {
		req.response = &resp
		req.close()
	}
}

func (c *Client) handleEvent(content []byte) {
	var evt Event
	if err := json.Unmarshal(content, &evt); err != nil {
		return
	}

	c.handlerMu.RLock()
	handlers := c.handlers
	c.handlerMu.RUnlock()

	switch evt.Event {
	case "initialized":
		if handlers.onInitialized != nil {
			handlers.onInitialized()
		}
	case "stopped":
		dispatchEvent(evt.Body, handlers.onStopped)
	case "terminated":
		dispatchEvent(evt.Body, handlers.onTerminated)
	case "breakpoint":
		dispatchEvent(evt.Body, handlers.onBreakpoint)
	case "loadedSource":
		dispatchEvent(evt.Body, handlers.onLoadedSource)
	case "process":
		dispatchEvent(evt.Body, handlers.onProcess)
	}

	if handlers.onAny != nil {
		handlers.onAny(evt)
	}
}

// dispatchEvent decodes an event body and hands it to handler. Bodies
// that fail to decode are dropped; an absent body decodes as the zero value.
func dispatchEvent[T any](raw json.RawMessage, handler func(T)) {
	if handler == nil {
		return
	}
	var body T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return
		}
	}
	handler(body)
}

// sendRequest sends a request under a freshly reserved sequence number.
func (c *Client) sendRequest(ctx context.Context, command string, args interface{}) (*Response, error) {
	return c.send(ctx, c.NextSeq(), command, args)
}

// send sends a request with the given sequence number and waits for the response.
func (c *Client) send(ctx context.Context, seq int, command string, args interface{}) (*Response, error) {
	select {
	case <-c.done:
		return nil, ErrClientClosed
	default:
	}

	var argsJSON json.RawMessage
	if args != nil {
		var err error
		argsJSON, err = json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("marshal arguments: %w", err)
		}
	}

	req := Request{
		ProtocolMessage: ProtocolMessage{
			Seq:  seq,
			Type: "request",
		},
		Command:   command,
		Arguments: argsJSON,
	}

	content, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	pending := &pendingRequest{
		done: make(chan struct{}),
	}

	c.pendingMu.Lock()
	c.pending[seq] = pending
	c.pendingMu.Unlock()

	msg := &Message{
		ContentLength: len(content),
		Content:       content,
	}

	if err := c.transport.Send(msg); err != nil {
		c.forget(seq)
		return nil, fmt.Errorf("send request: %w", err)
	}

	select {
	case <-ctx.Done():
		c.forget(seq)
		return nil, ctx.Err()
	case <-pending.done:
		if pending.err != nil {
			return nil, pending.err
		}
		return pending.response, nil
	}
}

func (c *Client) forget(seq int) {
	c.pendingMu.Lock()
	delete(c.pending, seq)
	c.pendingMu.Unlock()
}

// decodeBody checks the response status and decodes its body into out.
func decodeBody(resp *Response, command string, out interface{}) error {
	if !resp.Success {
		return fmt.Errorf("%s failed: %s", command, resp.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", command, err)
	}
	return nil
}

// OnInitialized sets the handler for the initialized event.
func (c *Client) OnInitialized(handler func()) {
	c.handlerMu.Lock()
	c.handlers.onInitialized = handler
	c.handlerMu.Unlock()
}

// OnStopped sets the handler for the stopped event.
func (c *Client) OnStopped(handler func(StoppedEventBody)) {
	c.handlerMu.Lock()
	c.handlers.onStopped = handler
	c.handlerMu.Unlock()
}

// OnTerminated sets the handler for the terminated event.
func (c *Client) OnTerminated(handler func(TerminatedEventBody)) {
	c.handlerMu.Lock()
	c.handlers.onTerminated = handler
	c.handlerMu.Unlock()
}

// OnBreakpoint sets the handler for the breakpoint event.
func (c *Client) OnBreakpoint(handler func(BreakpointEventBody)) {
	c.handlerMu.Lock()
	c.handlers.onBreakpoint = handler
	c.handlerMu.Unlock()
}

// OnLoadedSource sets the handler for the loadedSource event.
func (c *Client) OnLoadedSource(handler func(LoadedSourceEventBody)) {
	c.handlerMu.Lock()
	c.handlers.onLoadedSource = handler
	c.handlerMu.Unlock()
}

// OnProcess sets the handler for the process event.
func (c *Client) OnProcess(handler func(ProcessEventBody)) {
	c.handlerMu.Lock()
	c.handlers.onProcess = handler
	c.handlerMu.Unlock()
}

// OnAnyEvent sets a handler for all events.
func (c *Client) OnAnyEvent(handler func(Event)) {
	c.handlerMu.Lock()
	c.handlers.onAny = handler
	c.handlerMu.Unlock()
}

// Initialize sends the initialize request.
func (c *Client) Initialize(ctx context.Context, args InitializeRequestArguments) (*Capabilities, error) {
	resp, err := c.sendRequest(ctx, "initialize", args)
	if err != nil {
		return nil, err
	}

	var caps Capabilities
	if err := decodeBody(resp, "initialize", &caps); err != nil {
		return nil, err
	}
	return &caps, nil
}

// ConfigurationDone sends the configurationDone request.
func (c *Client) ConfigurationDone(ctx context.Context) error {
	resp, err := c.sendRequest(ctx, "configurationDone", nil)
	if err != nil {
		return err
	}
	return decodeBody(resp, "configurationDone", nil)
}

// Launch sends the launch request. Arguments are adapter specific.
func (c *Client) Launch(ctx context.Context, args interface{}) error {
	resp, err := c.sendRequest(ctx, "launch", args)
	if err != nil {
		return err
	}
	return decodeBody(resp, "launch", nil)
}

// Attach sends the attach request. Arguments are adapter specific.
func (c *Client) Attach(ctx context.Context, args interface{}) error {
	resp, err := c.sendRequest(ctx, "attach", args)
	if err != nil {
		return err
	}
	return decodeBody(resp, "attach", nil)
}

// Disconnect sends the disconnect request.
func (c *Client) Disconnect(ctx context.Context, args DisconnectArguments) error {
	resp, err := c.sendRequest(ctx, "disconnect", args)
	if err != nil {
		return err
	}
	return decodeBody(resp, "disconnect", nil)
}

// SetBreakpoints sends the setBreakpoints request.
func (c *Client) SetBreakpoints(ctx context.Context, args SetBreakpointsArguments) ([]Breakpoint, error) {
	return c.SetBreakpointsWithSeq(ctx, c.NextSeq(), args)
}

// SetBreakpointsWithSeq sends the setBreakpoints request under a sequence
// number previously obtained from NextSeq.
func (c *Client) SetBreakpointsWithSeq(ctx context.Context, seq int, args SetBreakpointsArguments) ([]Breakpoint, error) {
	resp, err := c.send(ctx, seq, "setBreakpoints", args)
	if err != nil {
		return nil, err
	}

	var body SetBreakpointsResponseBody
	if err := decodeBody(resp, "setBreakpoints", &body); err != nil {
		return nil, err
	}
	return body.Breakpoints, nil
}

// Threads sends the threads request.
func (c *Client) Threads(ctx context.Context) ([]Thread, error) {
	resp, err := c.sendRequest(ctx, "threads", nil)
	if err != nil {
		return nil, err
	}

	var body ThreadsResponseBody
	if err := decodeBody(resp, "threads", &body); err != nil {
		return nil, err
	}
	return body.Threads, nil
}

// StackTrace sends the stackTrace request.
func (c *Client) StackTrace(ctx context.Context, args StackTraceArguments) (*StackTraceResponseBody, error) {
	resp, err := c.sendRequest(ctx, "stackTrace", args)
	if err != nil {
		return nil, err
	}

	var body StackTraceResponseBody
	if err := decodeBody(resp, "stackTrace", &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// Source sends the source request.
func (c *Client) Source(ctx context.Context, args SourceArguments) (*SourceResponseBody, error) {
	resp, err := c.sendRequest(ctx, "source", args)
	if err != nil {
		return nil, err
	}

	var body SourceResponseBody
	if err := decodeBody(resp, "source", &body); err != nil {
		return nil, err
	}
	return &body, nil
}
