package messages

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BatmanBruc/pdf-batch-bot/types"
)

func TestErrorText(t *testing.T) {
	wrapped := fmt.Errorf("convert: %w", &types.ImageError{Index: 2, Err: types.ErrDecode})
	assert.Contains(t, ErrorText(wrapped), "Image #3")
	assert.Contains(t, ErrorText(wrapped), "/remove 3")
	assert.True(t, Known(wrapped))

	assert.Contains(t, ErrorText(fmt.Errorf("x: %w", types.ErrCapacityExceeded)), "full")
	assert.Contains(t, ErrorText(types.ErrUnauthorized), "not allowed")

	other := errors.New("socket closed")
	assert.False(t, Known(other))
	assert.Equal(t, ErrorDefault(), ErrorText(other))
	assert.Empty(t, ErrorText(nil))
}

func TestEscapeUserText(t *testing.T) {
	assert.Equal(t, "&lt;b&gt;Tom &amp; Jerry&lt;/b&gt;", Escape(" <b>Tom & Jerry</b> "))
	assert.Contains(t, CatalogRenamed("a_1", "<script>"), "&lt;script&gt;")
}

func TestConversionDone(t *testing.T) {
	msg := ConversionDone("trip.pdf", 3, "trip_abc123")
	assert.Contains(t, msg, "3 page(s)")
	assert.Contains(t, msg, "/get trip_abc123")
	assert.NotContains(t, ConversionDone("x.pdf", 1, ""), "/get")
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", HumanBytes(512))
	assert.Equal(t, "1.5 KB", HumanBytes(1536))
	assert.Equal(t, "20.0 MB", HumanBytes(20<<20))
}
