package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationIDRoundTripsThroughContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", CorrelationIDFromContext(ctx))

	id := GenerateCorrelationID()
	assert.NotEmpty(t, id)

	ctx = WithCorrelationIDContext(ctx, id)
	assert.Equal(t, id, CorrelationIDFromContext(ctx))
}

func TestLoggerWithContextTagsCorrelationID(t *testing.T) {
	log := New("test.component")

	ctx := WithCorrelationIDContext(context.Background(), "corr-123")
	tagged := log.WithContext(ctx)
	assert.NotNil(t, tagged)

	untagged := log.WithContext(context.Background())
	assert.Same(t, log, untagged)
}

func TestLoggerChainingDoesNotPanic(t *testing.T) {
	log := New("test.component")
	log.WithField("k", "v").WithFields(Fields{"a": 1}).Info("hello")
	log.WithError(assertErr{}).Warn("something went wrong")
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
