package inference_test

import (
	"context"
	"errors"
	"testing"

	"nutrilog"
	"nutrilog/inference"
	"nutrilog/inference/fake"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

func replySchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"name":  {Type: "string"},
			"score": {Type: "number", Minimum: jsonschema.Ptr(0.0), Maximum: jsonschema.Ptr(1.0)},
		},
		Required: []string{"name", "score"},
	}
}

type recordingLogger struct {
	entries []nutrilog.ExchangeLog
}

func (r *recordingLogger) LogExchange(e nutrilog.ExchangeLog) error {
	r.entries = append(r.entries, e)
	return nil
}

func TestGateway_GenerateStructured(t *testing.T) {
	tests := []struct {
		name     string
		response fake.Response
		want     reply
		wantErr  error
	}{
		{
			name:     "valid bare json",
			response: fake.Text(`{"name":"oats","score":0.5}`),
			want:     reply{Name: "oats", Score: 0.5},
		},
		{
			name:     "valid fenced json",
			response: fake.Text("```json\n{\"name\":\"oats\",\"score\":1}\n```"),
			want:     reply{Name: "oats", Score: 1},
		},
		{
			name:     "provider failure",
			response: fake.Error(errors.New("connection refused")),
			wantErr:  nutrilog.ErrInferenceUnavailable,
		},
		{
			name:     "missing required field",
			response: fake.Text(`{"name":"oats"}`),
			wantErr:  nutrilog.ErrInferenceParse,
		},
		{
			name:     "mistyped field",
			response: fake.Text(`{"name":"oats","score":"high"}`),
			wantErr:  nutrilog.ErrInferenceParse,
		},
		{
			name:     "out of range field",
			response: fake.Text(`{"name":"oats","score":7}`),
			wantErr:  nutrilog.ErrInferenceParse,
		},
		{
			name:     "array of objects",
			response: fake.Text(`[{"name":"a","score":0.5},{"name":"b","score":0.9}]`),
			wantErr:  nutrilog.ErrInferenceParse,
		},
		{
			name:     "prose only",
			response: fake.Text("Sorry, I can't see any food."),
			wantErr:  nutrilog.ErrInferenceParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := fake.New(tt.response)
			logger := &recordingLogger{}
			gw := inference.NewGateway(provider, inference.GatewayOptions{Logger: logger})

			var got reply
			err := gw.GenerateStructured(context.Background(), inference.Request{
				Operation: "test",
				System:    "system",
				Text:      "hello",
				Schema:    replySchema(),
			}, &got)

			assert.Equal(t, 1, provider.Calls(), "gateway must not retry")
			require.Len(t, logger.entries, 1)
			assert.Equal(t, "test", logger.entries[0].Operation)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGateway_WithoutSchema(t *testing.T) {
	gw := inference.NewGateway(fake.New(fake.Text(`noise {"name":"free","score":42} noise`)), inference.GatewayOptions{})

	var got reply
	require.NoError(t, gw.GenerateStructured(context.Background(), inference.Request{Operation: "test"}, &got))
	assert.Equal(t, reply{Name: "free", Score: 42}, got)
}

func TestGateway_ForwardsRequest(t *testing.T) {
	provider := fake.New(fake.Text(`{"name":"x","score":0}`))
	gw := inference.NewGateway(provider, inference.GatewayOptions{})

	img := &inference.Image{MIMEType: "image/png", Data: []byte{0x89, 0x50}}
	var got reply
	require.NoError(t, gw.GenerateStructured(context.Background(), inference.Request{
		Operation: inference.OpEstimate,
		System:    "be precise",
		Text:      "what is this",
		Image:     img,
		Schema:    replySchema(),
	}, &got))

	reqs := provider.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "be precise", reqs[0].System)
	assert.Equal(t, "what is this", reqs[0].Text)
	assert.Equal(t, img, reqs[0].Image)
}
