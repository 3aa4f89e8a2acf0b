package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueue(t *testing.T) {
	q := NewInMemoryQueue(2)

	assert.Equal(t, 0, q.Size())

	require.NoError(t, q.Enqueue("a"))
	require.NoError(t, q.Enqueue("b"))
	assert.Equal(t, 2, q.Size())

	err := q.Enqueue("c")
	assert.Error(t, err)

	item, err := q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, "a", item)

	messages, err := q.ReadAllMessages()
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"b"}, messages)
	assert.Equal(t, 0, q.Size())

	_, err = q.Dequeue()
	assert.Error(t, err)
}

func TestInMemoryQueue_ClearQueue(t *testing.T) {
	q := NewInMemoryQueue(4)
	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))

	require.NoError(t, q.ClearQueue())
	assert.Equal(t, 0, q.Size())
}
