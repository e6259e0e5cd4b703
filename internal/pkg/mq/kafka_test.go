package mq

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestKafkaHeaderCarrier(t *testing.T) {
	c := KafkaHeaderCarrier{}
	c.Set("traceparent", "a")
	c.Set("traceparent", "b")
	c.Set("baggage", "k=v")

	assert.Equal(t, "b", c.Get("traceparent"))
	assert.Equal(t, "", c.Get("missing"))
	assert.ElementsMatch(t, []string{"traceparent", "baggage"}, c.Keys())
}

func TestTraceContextRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	var headers []kafka.Header
	InjectTraceContext(ctx, &headers)
	assert.NotEmpty(t, headers)

	restored := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), headers))
	assert.Equal(t, traceID, restored.TraceID())
	assert.Equal(t, spanID, restored.SpanID())
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitBrokers(" a:9092, ,b:9092 "))
	assert.Nil(t, SplitBrokers(""))
}

func TestNewDeadLetter(t *testing.T) {
	orig := kafka.Message{
		Topic:     "payment-outcomes",
		Partition: 2,
		Offset:    42,
		Key:       []byte("o-1"),
		Value:     []byte("{bad"),
		Headers:   []kafka.Header{{Key: "traceparent", Value: []byte("x")}},
	}

	dl := NewDeadLetter(orig, assert.AnError)
	carrier := KafkaHeaderCarrier(dl.Headers)

	assert.Equal(t, orig.Key, dl.Key)
	assert.Equal(t, orig.Value, dl.Value)
	assert.Empty(t, dl.Topic)
	assert.Equal(t, "x", carrier.Get("traceparent"))
	assert.Equal(t, "payment-outcomes", carrier.Get(HeaderOriginalTopic))
	assert.Equal(t, "2", carrier.Get(HeaderOriginalPartition))
	assert.Equal(t, "42", carrier.Get(HeaderOriginalOffset))
	assert.Equal(t, assert.AnError.Error(), carrier.Get(HeaderExceptionMessage))
	assert.Equal(t, "payment-outcomes.dlt", DLTTopic("payment-outcomes"))
}
