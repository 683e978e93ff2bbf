package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaConfigDefaults(t *testing.T) {
	cfg := KafkaConfig{Brokers: "localhost:9092", Topic: "audit"}.withDefaults()
	assert.Equal(t, defaultRetries, cfg.Retries)

	tuned := KafkaConfig{Retries: 10, DeliveryTimeout: time.Second}.withDefaults()
	assert.Equal(t, 10, tuned.Retries)
	assert.Equal(t, time.Second, tuned.DeliveryTimeout)
}

func TestNewKafkaPublisherRequiresBrokersAndTopic(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "audit"}, nil)
	require.Error(t, err)

	_, err = NewKafkaPublisher(KafkaConfig{Brokers: "localhost:9092"}, nil)
	require.Error(t, err)
}
