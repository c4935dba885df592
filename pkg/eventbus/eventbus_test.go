package eventbus

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/payroll-reconciler/pkg/logging"
)

type statusChanged struct {
	fileID int64
}

type stageQueued struct{}

func TestPublisher_PublishWarnsWithoutSubscribers(t *testing.T) {
	logBuffer := bytes.Buffer{}
	log := logrus.New()
	log.SetOutput(&logBuffer)
	log.SetLevel(logrus.WarnLevel)

	publisher := NewEventPublisher(log)
	publisher.Subscribe(func(e *statusChanged) {
		t.Error("should not be called")
	})
	publisher.Publish(&stageQueued{})

	require.True(t, strings.Contains(logBuffer.String(), "eventbus.Publish: no matching subscribers"), logBuffer.String())
}

func TestPublisher_Subscribe(t *testing.T) {
	publisher := NewEventPublisher(logging.ConsoleLogger(logrus.WarnLevel))
	var got int64
	publisher.Subscribe(func(e *statusChanged) {
		got = e.fileID
	})
	publisher.Publish(&statusChanged{fileID: 7})
	require.Equal(t, int64(7), got)
	require.Equal(t, 1, publisher.SubscribersCount())
}

func TestPublisher_PublishE(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	publisher := NewEventPublisher(nil)

	require.ErrorIs(t, publisher.PublishE(context.Background(), &statusChanged{}), ErrNoSubscribers)

	publisher.Subscribe(func(ctx context.Context, e *statusChanged) error {
		if e.fileID == 0 {
			return boom
		}
		return nil
	})
	publisher.Subscribe(func(ctx context.Context, e *statusChanged) {
		if e.fileID == 99 {
			panic("bad file")
		}
	})

	require.NoError(t, publisher.PublishE(context.Background(), &statusChanged{fileID: 1}))
	require.ErrorIs(t, publisher.PublishE(context.Background(), &statusChanged{}), boom)

	err := publisher.PublishE(context.Background(), &statusChanged{fileID: 99})
	require.Error(t, err)
	require.Contains(t, err.Error(), "panicked")
}

func TestPublisher_PublishE_InvalidReturn(t *testing.T) {
	t.Parallel()

	publisher := NewEventPublisher(nil)
	publisher.Subscribe(func(e *statusChanged) int { return 1 })

	require.ErrorIs(t, publisher.PublishE(&statusChanged{}), ErrInvalidHandlerReturn)
}

func TestPublisher_Unsubscribe(t *testing.T) {
	t.Parallel()

	publisher := NewEventPublisher(nil)
	h := func(e *statusChanged) {}
	publisher.Subscribe(h)
	publisher.Subscribe(func(e *stageQueued) {})
	publisher.Unsubscribe(h)
	require.Equal(t, 1, publisher.SubscribersCount())

	publisher.Clear()
	require.Zero(t, publisher.SubscribersCount())
}

func TestMatchSignature(t *testing.T) {
	t.Parallel()

	require.True(t, MatchSignature(func(e *statusChanged) {}, []interface{}{&statusChanged{}}))
	require.False(t, MatchSignature(func(e *statusChanged) {}, []interface{}{&stageQueued{}}))
	require.False(t, MatchSignature(func(e *statusChanged) {}, []interface{}{}))
	require.False(t, MatchSignature(func(e *statusChanged) {}, []interface{}{&statusChanged{}, &statusChanged{}}))
	require.True(t, MatchSignature(func(ctx context.Context) {}, []interface{}{context.Background()}))
	require.True(t, MatchSignature(func(e *statusChanged) {}, []interface{}{nil}))
	require.False(t, MatchSignature("not a func", []interface{}{}))
}
