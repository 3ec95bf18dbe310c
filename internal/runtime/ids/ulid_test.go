package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	id := New()
	assert.Len(t, id, 26)
}

func TestNewIsUniqueAndOrdered(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		assert.NotEqual(t, prev, next)
		assert.Less(t, prev, next, "monotonic entropy keeps same-process IDs sorted")
		prev = next
	}
}
