package face

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"presence/internal/face/mocks"
	dErrors "presence/pkg/domain-errors"
	"presence/pkg/platform/circuit"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	inner := mocks.NewMockAnalyzer(ctrl)

	unavailable := dErrors.New(dErrors.CodeUnavailable, "face service unavailable")
	inner.EXPECT().DetectFaces(gomock.Any(), gomock.Any()).Return(0, unavailable).Times(2)

	wrapped := NewBreakerAnalyzer(inner, slog.Default(),
		WithBreaker(circuit.New("test", circuit.WithFailureThreshold(2))),
		WithProbeInterval(time.Hour),
	)

	frame := testFrame()
	for i := 0; i < 2; i++ {
		_, err := wrapped.DetectFaces(context.Background(), frame)
		require.Error(t, err)
	}

	// Circuit is open now; the mock would fail the test if this reached inner.
	_, err := wrapped.DetectFaces(context.Background(), frame)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	assert.Contains(t, err.Error(), "circuit open")
}

func TestBreakerProbesAndCloses(t *testing.T) {
	ctrl := gomock.NewController(t)
	inner := mocks.NewMockAnalyzer(ctrl)

	unavailable := dErrors.New(dErrors.CodeUnavailable, "face service unavailable")
	gomock.InOrder(
		inner.EXPECT().DetectFaces(gomock.Any(), gomock.Any()).Return(0, unavailable),
		inner.EXPECT().DetectFaces(gomock.Any(), gomock.Any()).Return(1, nil).Times(2),
	)

	wrapped := NewBreakerAnalyzer(inner, slog.Default(),
		WithBreaker(circuit.New("test",
			circuit.WithFailureThreshold(1),
			circuit.WithSuccessThreshold(1),
		)),
		WithProbeInterval(time.Nanosecond),
	)

	frame := testFrame()
	_, err := wrapped.DetectFaces(context.Background(), frame)
	require.Error(t, err)

	// The probe succeeds and closes the circuit again.
	time.Sleep(time.Millisecond)
	count, err := wrapped.DetectFaces(context.Background(), frame)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = wrapped.DetectFaces(context.Background(), frame)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBreakerIgnoresDomainErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	inner := mocks.NewMockAnalyzer(ctrl)

	noFace := dErrors.New(dErrors.CodeNoFace, "no face detected in frame")
	inner.EXPECT().DetectFaces(gomock.Any(), gomock.Any()).Return(0, noFace).Times(10)

	wrapped := NewBreakerAnalyzer(inner, slog.Default(),
		WithBreaker(circuit.New("test", circuit.WithFailureThreshold(2))),
	)

	frame := testFrame()
	for i := 0; i < 10; i++ {
		_, err := wrapped.DetectFaces(context.Background(), frame)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNoFace))
	}
}
