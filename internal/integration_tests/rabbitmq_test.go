package integrationtests

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentradar-backend/internal/messaging"
	"rentradar-backend/pkg/models"
)

func TestRabbitMQOfferTasks(t *testing.T) {
	ctx := context.Background()
	amqpURL := setupRabbitMQContainer(t, ctx)

	publisher, err := messaging.NewRabbitMQPublisher(amqpURL)
	require.NoError(t, err)
	defer publisher.Close()

	receiver, err := messaging.NewRabbitMQReceiver(amqpURL)
	require.NoError(t, err)
	defer receiver.Close()

	runId := uuid.New()
	urls := []string{
		"https://spb.cian.ru/rent/flat/1/",
		"https://spb.cian.ru/rent/flat/2/",
	}

	for _, url := range urls {
		err := publisher.PublishOfferTask(ctx, models.OfferTaskPayload{RunId: runId, Url: url})
		require.NoError(t, err)
	}

	for _, url := range urls {
		select {
		case task := <-receiver.Tasks():
			assert.Equal(t, messaging.OfferQueue, task.Type())

			var payload models.OfferTaskPayload
			require.NoError(t, json.Unmarshal(task.Payload(), &payload))
			assert.Equal(t, runId, payload.RunId)
			assert.Equal(t, url, payload.Url)

			require.NoError(t, task.Ack())
		case <-time.After(4 * time.Second):
			t.Fatal("Timed out waiting for task")
		}
	}
}

func TestRabbitMQNackRequeues(t *testing.T) {
	ctx := context.Background()
	amqpURL := setupRabbitMQContainer(t, ctx)

	publisher, err := messaging.NewRabbitMQPublisher(amqpURL)
	require.NoError(t, err)
	defer publisher.Close()

	receiver, err := messaging.NewRabbitMQReceiver(amqpURL)
	require.NoError(t, err)
	defer receiver.Close()

	payload := models.OfferTaskPayload{RunId: uuid.New(), Url: "https://spb.cian.ru/rent/flat/3/"}
	require.NoError(t, publisher.PublishOfferTask(ctx, payload))

	select {
	case task := <-receiver.Tasks():
		require.NoError(t, task.Nack())
	case <-time.After(4 * time.Second):
		t.Fatal("Timed out waiting for task")
	}

	// the nacked task comes back for redelivery
	select {
	case task := <-receiver.Tasks():
		var redelivered models.OfferTaskPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &redelivered))
		assert.Equal(t, payload.Url, redelivered.Url)
		require.NoError(t, task.Ack())
	case <-time.After(4 * time.Second):
		t.Fatal("Timed out waiting for redelivered task")
	}
}
