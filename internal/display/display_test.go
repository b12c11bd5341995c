package display

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogDisplay_Show(t *testing.T) {
	var buf bytes.Buffer
	d := NewLogDisplay(log.New(&buf, "", 0))

	d.Show(FoodOverflow)

	assert.Equal(t, "display: [Refill rejected] food over capacity\n", buf.String())
}
