package tracing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsPersonalData(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("external_id", "INV-1"),
		attribute.String("customer_email", "a@example.com"),
		attribute.String("x_callback_token", "secret"),
		attribute.String("product_type", "MEMBERSHIP"),
	)

	keys := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		keys = append(keys, string(attr.Key))
	}
	assert.Equal(t, []string{"external_id", "product_type"}, keys)
}

func TestSafeErrorTruncates(t *testing.T) {
	assert.Nil(t, SafeError(nil))

	long := errors.New(strings.Repeat("x", 1000))
	safe := SafeError(long)
	assert.Len(t, safe.Error(), 259)
	assert.True(t, strings.HasSuffix(safe.Error(), "..."))

	short := errors.New("boom")
	assert.Equal(t, "boom", SafeError(short).Error())
}
