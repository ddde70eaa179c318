package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestEndpointExcluder(t *testing.T) {
	excluder := newEndpointExcluder(map[string]struct{}{"/v1/readiness": {}}, 1.0)
	traceID := trace.TraceID{0x01}

	tests := []struct {
		name  string
		attrs []attribute.KeyValue
		want  sdktrace.SamplingDecision
	}{
		{
			name:  "excluded legacy target",
			attrs: []attribute.KeyValue{attribute.String("http.target", "/v1/readiness")},
			want:  sdktrace.Drop,
		},
		{
			name:  "excluded url path",
			attrs: []attribute.KeyValue{attribute.String("url.path", "/v1/readiness")},
			want:  sdktrace.Drop,
		},
		{
			name:  "sampled route",
			attrs: []attribute.KeyValue{attribute.String("url.path", "/configuration/sms/active")},
			want:  sdktrace.RecordAndSample,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := excluder.ShouldSample(sdktrace.SamplingParameters{
				TraceID:    traceID,
				Attributes: tt.attrs,
			})
			assert.Equal(t, tt.want, res.Decision)
		})
	}
}

func TestGetTraceIDWithoutSpan(t *testing.T) {
	assert.Equal(t, emptyTraceID, GetTraceID(context.Background()))
}
