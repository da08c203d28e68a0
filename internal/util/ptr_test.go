package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPtrCopies(t *testing.T) {
	v := uint64(3)
	p := Ptr(v)
	v = 4
	assert.Equal(t, uint64(3), *p)
}

func TestDeref(t *testing.T) {
	assert.Equal(t, uint64(7), Deref(Ptr(uint64(7)), 0))
	assert.Equal(t, uint64(0), Deref[uint64](nil, 0))
	assert.Equal(t, "-", Deref[string](nil, "-"))
}
