package fake

import (
	"context"
	"errors"
	"testing"

	"nutrilog/inference"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_ReplaysInOrder(t *testing.T) {
	boom := errors.New("boom")
	p := New(Text("first"), Error(boom))
	p.Push(Text("third"))

	ctx := context.Background()

	out, err := p.Generate(ctx, inference.Request{Operation: "a"})
	require.NoError(t, err)
	assert.Equal(t, "first", out)

	_, err = p.Generate(ctx, inference.Request{Operation: "b"})
	assert.ErrorIs(t, err, boom)

	out, err = p.Generate(ctx, inference.Request{Operation: "c"})
	require.NoError(t, err)
	assert.Equal(t, "third", out)

	_, err = p.Generate(ctx, inference.Request{Operation: "d"})
	assert.ErrorIs(t, err, ErrExhausted)

	reqs := p.Requests()
	require.Len(t, reqs, 4)
	assert.Equal(t, "d", reqs[3].Operation)
}

func TestProvider_CancelledContext(t *testing.T) {
	p := New(Text("unused"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Generate(ctx, inference.Request{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.Calls())
}

func TestCanned(t *testing.T) {
	c := NewCanned()
	for _, op := range []string{inference.OpEstimate, inference.OpCalibrate, inference.OpPlan, inference.OpCoach} {
		t.Run(op, func(t *testing.T) {
			out, err := c.Generate(context.Background(), inference.Request{Operation: op})
			require.NoError(t, err)
			clean, err := inference.CleanJSON(out)
			require.NoError(t, err)
			assert.NotEmpty(t, clean)
		})
	}

	_, err := c.Generate(context.Background(), inference.Request{Operation: "unknown"})
	assert.Error(t, err)
}
