package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/resilience"
)

type flakyPublisher struct {
	failures int
	events   []kafka.Event
}

func (p *flakyPublisher) Publish(_ context.Context, ev kafka.Event) error {
	if p.failures > 0 {
		p.failures--
		return errors.New("leader not available")
	}
	p.events = append(p.events, ev)
	return nil
}

var fastRetry = resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}

func TestNotifierRetriesTransientFailures(t *testing.T) {
	pub := &flakyPublisher{failures: 2}
	n := NewKafkaNotifier(pub, fastRetry)

	ev := IndexPublished{Generation: "gen-7", Posts: 12, Tags: 4}
	require.NoError(t, n.IndexPublished(context.Background(), ev))
	require.Len(t, pub.events, 1)
	assert.Equal(t, "gen-7", pub.events[0].Key)
	assert.Equal(t, EventIndexPublished, pub.events[0].Type)
	assert.Equal(t, ev, pub.events[0].Value)
}

func TestNotifierGivesUp(t *testing.T) {
	n := NewKafkaNotifier(&flakyPublisher{failures: 10}, fastRetry)
	err := n.IndexPublished(context.Background(), IndexPublished{Generation: "gen-8"})
	assert.ErrorContains(t, err, "gen-8")
}

func TestHandler(t *testing.T) {
	var got []IndexPublished
	h := Handler(func(_ context.Context, ev IndexPublished) error {
		got = append(got, ev)
		return nil
	})
	payload, err := json.Marshal(IndexPublished{Generation: "gen-1", Posts: 3})
	require.NoError(t, err)

	require.NoError(t, h(context.Background(), kafka.Message{EventType: EventIndexPublished, Value: payload}))
	require.NoError(t, h(context.Background(), kafka.Message{EventType: "SomethingElse", Value: payload}))
	require.NoError(t, h(context.Background(), kafka.Message{Value: []byte("{")}))

	require.Len(t, got, 1)
	assert.Equal(t, "gen-1", got[0].Generation)
	assert.Equal(t, 3, got[0].Posts)
}
