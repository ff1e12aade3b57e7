package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestUserPriority(t *testing.T) {
	cases := []struct {
		in   *string
		want int
	}{
		{strPtr("urgent"), 1},
		{strPtr("high"), 2},
		{strPtr("medium"), 3},
		{strPtr("low"), 4},
		{strPtr("no priority"), 5},
		{nil, 5},
		{strPtr("whenever"), 5},
		{strPtr("URGENT"), 5},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, UserPriority(c.in))
	}
}

func TestNextTaskIdentifier(t *testing.T) {
	next, err := NextTaskIdentifier("TASK-0041")
	require.NoError(t, err)
	assert.Equal(t, "TASK-0042", next)

	next, err = NextTaskIdentifier("TASK-0009")
	require.NoError(t, err)
	assert.Equal(t, "TASK-0010", next)

	// no special casing past four digits
	next, err = NextTaskIdentifier("TASK-9999")
	require.NoError(t, err)
	assert.Equal(t, "TASK-10000", next)

	_, err = NextTaskIdentifier("TASK0041")
	assert.Error(t, err)
	_, err = NextTaskIdentifier("TASK-abc")
	assert.Error(t, err)
}

func TestAllocateTaskIdentifier(t *testing.T) {
	first, err := AllocateTaskIdentifier("", false)
	require.NoError(t, err)
	assert.Equal(t, "TASK-0001", first)

	next, err := AllocateTaskIdentifier("TASK-0001", true)
	require.NoError(t, err)
	assert.Equal(t, "TASK-0002", next)
}
