package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMulticastAllocator(t *testing.T) {
	a, err := newMulticastAllocator("224.1.0.0/16")
	require.NoError(t, err)

	require.Equal(t, "224.1.0.1", a.ip().String())
	require.Equal(t, "224.1.0.2", a.ip().String())
}

func TestMulticastAllocatorWrap(t *testing.T) {
	a, err := newMulticastAllocator("224.1.0.0/30")
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for i := 0; i < 8; i++ {
		seen[a.ip().String()] = struct{}{}
	}
	require.Equal(t, 4, len(seen))
}

func TestMulticastAllocatorErrors(t *testing.T) {
	_, err := newMulticastAllocator("not-a-cidr")
	require.Error(t, err)

	_, err = newMulticastAllocator("ff00::/8")
	require.Error(t, err)
}
