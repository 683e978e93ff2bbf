package audit

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPublisherRecordsEvents(t *testing.T) {
	pub := NewMemoryPublisher()

	ev := NewEvent(ActionVerification, "alice")
	ev.Outcome = "verified"
	ev.GatePassed = 4
	require.NoError(t, pub.Publish(context.Background(), ev))

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, ActionVerification, events[0].Action)
	assert.Equal(t, HashSubject("alice"), events[0].SubjectHash)
	assert.Equal(t, 4, events[0].GatePassed)
	assert.NotEqual(t, "alice", events[0].SubjectHash)
}

func TestMemoryPublisherConcurrentPublish(t *testing.T) {
	pub := NewMemoryPublisher()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pub.Publish(context.Background(), NewEvent(ActionVerification, "alice"))
		}()
	}
	wg.Wait()

	assert.Len(t, pub.Events(), 50)
}

func TestHashSubjectStable(t *testing.T) {
	assert.Equal(t, HashSubject("alice"), HashSubject("alice"))
	assert.NotEqual(t, HashSubject("alice"), HashSubject("bob"))
	assert.Len(t, HashSubject("alice"), 16)
}
