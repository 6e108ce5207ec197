// Package inference is the single chokepoint for remote structured-inference calls.
//
// A Provider turns a Request into raw model text. The Gateway wraps a Provider and
// turns that text into a value that has been checked against the request schema,
// so nothing unvalidated crosses into the rest of the system.
package inference

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
)

// Operation names label requests in logs, traces and metrics.
const (
	OpEstimate  = "estimate"
	OpCalibrate = "calibrate"
	OpPlan      = "plan"
	OpCoach     = "coach"
)

type Image struct {
	MIMEType string
	Data     []byte
}

// Request is the provider call shape: a system instruction, user content and the
// schema the reply must satisfy.
type Request struct {
	Operation string
	System    string
	Text      string
	Image     *Image
	Schema    *jsonschema.Schema
}

// Provider is implemented by every model adapter. It returns the model's raw text
// and makes no attempt to parse it.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Structured is the capability the services depend on.
type Structured interface {
	GenerateStructured(ctx context.Context, req Request, out any) error
}

// ProviderFunc adapts a plain function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (string, error)

func (f ProviderFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
