package messaging

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentradar-backend/pkg/models"
)

func TestInMemoryQueuePublishAndConsume(t *testing.T) {
	q := NewInMemoryQueue()
	defer q.Close()

	payload := models.OfferTaskPayload{RunId: uuid.New(), Url: "https://spb.cian.ru/rent/flat/1/"}
	require.NoError(t, q.PublishOfferTask(context.Background(), payload))

	task := <-q.Tasks()
	assert.Equal(t, OfferQueue, task.Type())

	var got models.OfferTaskPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &got))
	assert.Equal(t, payload, got)

	assert.NoError(t, task.Ack())
}

func TestInMemoryQueueOrdering(t *testing.T) {
	q := NewInMemoryQueue()
	defer q.Close()

	runId := uuid.New()
	urls := []string{"u1", "u2", "u3"}
	for _, u := range urls {
		require.NoError(t, q.PublishOfferTask(context.Background(), models.OfferTaskPayload{RunId: runId, Url: u}))
	}

	for _, want := range urls {
		task := <-q.Tasks()
		var got models.OfferTaskPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &got))
		assert.Equal(t, want, got.Url)
	}
}

func TestInMemoryQueueCloseDrains(t *testing.T) {
	q := NewInMemoryQueue()
	require.NoError(t, q.PublishOfferTask(context.Background(), models.OfferTaskPayload{RunId: uuid.New(), Url: "u1"}))
	tasks := q.Tasks()
	q.Close()

	// the buffered task is still delivered, then the channel closes
	_, ok := <-tasks
	assert.True(t, ok)
	_, ok = <-tasks
	assert.False(t, ok)
}

func TestInMemoryQueuePublishAfterCloseFails(t *testing.T) {
	q := NewInMemoryQueue()
	q.Close()

	err := q.PublishOfferTask(context.Background(), models.OfferTaskPayload{RunId: uuid.New(), Url: "u1"})
	assert.Error(t, err)

	// consumers polling Tasks after close see a closed channel, not a nil one
	select {
	case _, ok := <-q.Tasks():
		assert.False(t, ok)
	default:
		t.Fatal("Tasks returned a nil channel after close")
	}
}
