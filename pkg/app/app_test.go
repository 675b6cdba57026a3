package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	started atomic.Int32
	stopped atomic.Int32
}

func (s *fakeServer) Start(ctx context.Context) error {
	s.started.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func (s *fakeServer) Stop(context.Context) error {
	s.stopped.Add(1)
	return nil
}

func TestAppRunStopsServersOnCancel(t *testing.T) {
	a, b := &fakeServer{}, &fakeServer{}
	application := NewApp(WithServer(a, b), WithName("test"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	require.Eventually(t, func() bool {
		return a.started.Load() == 1 && b.started.Load() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("app did not return after cancel")
	}
	assert.EqualValues(t, 1, a.stopped.Load())
	assert.EqualValues(t, 1, b.stopped.Load())
}
