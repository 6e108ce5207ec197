// Package fake provides deterministic inference providers for tests and offline runs.
package fake

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"nutrilog/inference"
)

var ErrExhausted = errors.New("fake: no scripted response left")

type Response struct {
	Text string
	Err  error
}

func Text(s string) Response   { return Response{Text: s} }
func Error(err error) Response { return Response{Err: err} }

// Provider replays scripted responses in order and records every request it sees.
type Provider struct {
	mu        sync.Mutex
	responses []Response
	requests  []inference.Request
}

func New(responses ...Response) *Provider {
	return &Provider{responses: responses}
}

// Push appends more scripted responses.
func (p *Provider) Push(responses ...Response) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, responses...)
}

func (p *Provider) Generate(ctx context.Context, req inference.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(p.responses) == 0 {
		return "", fmt.Errorf("%w (request %d, operation %q)", ErrExhausted, len(p.requests), req.Operation)
	}

	next := p.responses[0]
	p.responses = p.responses[1:]
	return next.Text, next.Err
}

// Requests returns a copy of every request received so far.
func (p *Provider) Requests() []inference.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]inference.Request(nil), p.requests...)
}

func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}
