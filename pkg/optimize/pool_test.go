package optimize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytePoolReuse(t *testing.T) {
	p := NewBytePool(1500)

	b := p.Get()
	assert.Len(t, b, 1500)
	p.Put(b)

	again := p.Get()
	assert.Len(t, again, 1500)
}

func TestBytePoolRejectsForeignSlices(t *testing.T) {
	p := NewBytePool(1500)
	p.Put(make([]byte, 10)) // too small, silently dropped

	b := p.Get()
	assert.Len(t, b, 1500)
}
