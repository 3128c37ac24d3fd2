package petsync

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pawbase/petsync/internal/testlog"
	"github.com/pawbase/petsync/pkg/connection"
	"github.com/pawbase/petsync/pkg/logger"
	"github.com/pawbase/petsync/pkg/models"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	return logger.New(testlog.NewHandler(testWriter{t}))
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// mockRealtime hands out scripted subscriptions so tests can drive the
// push channel by hand.
type mockRealtime struct {
	mu            sync.Mutex
	subs          []*mockSubscription
	subscribeErr  error
	connectCalled int
	closeCalled   int
}

var _ connection.Realtime = (*mockRealtime)(nil)

func (m *mockRealtime) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectCalled++
	return nil
}

func (m *mockRealtime) Subscribe(ctx context.Context, topic string, filter connection.Filter) (connection.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return nil, m.subscribeErr
	}
	sub := &mockSubscription{
		topic:   topic,
		filter:  filter,
		records: make(chan connection.Record, 100),
		updates: make(chan connection.Status, 16),
	}
	m.subs = append(m.subs, sub)
	return sub, nil
}

func (m *mockRealtime) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalled++
	return nil
}

func (m *mockRealtime) lastSub() *mockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.subs) == 0 {
		return nil
	}
	return m.subs[len(m.subs)-1]
}

type mockSubscription struct {
	topic  string
	filter connection.Filter

	records chan connection.Record
	updates chan connection.Status

	mu           sync.Mutex
	unsubscribed int
}

var _ connection.Subscription = (*mockSubscription)(nil)

func (s *mockSubscription) Records() <-chan connection.Record { return s.records }
func (s *mockSubscription) Updates() <-chan connection.Status { return s.updates }

func (s *mockSubscription) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribed++
	if s.unsubscribed > 1 {
		return connection.ErrSubscriptionClosed
	}
	close(s.records)
	close(s.updates)
	return nil
}

func (s *mockSubscription) pushStatus(st connection.Status) {
	s.updates <- st
}

func (s *mockSubscription) pushItem(t *testing.T, item models.StreamItem) {
	t.Helper()
	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("failed to marshal item: %v", err)
	}
	s.records <- connection.Record{
		Topic:  s.topic,
		Action: connection.ActionInsert,
		Data:   data,
	}
}

func chatItem(id, sender string, createdAt time.Time, read bool) models.StreamItem {
	return models.StreamItem{
		ID:        id,
		StreamID:  "s-1",
		SenderID:  sender,
		Payload:   json.RawMessage(`{"text":"` + id + `"}`),
		CreatedAt: createdAt,
		Read:      read,
	}
}

// waitForView polls the stream until cond holds or the deadline passes.
func waitForView(t *testing.T, s *Stream, timeout time.Duration, cond func(View) bool) View {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		v := s.View()
		if cond(v) {
			return v
		}
		if time.Now().After(deadline) {
			t.Fatalf("view condition not met before deadline, last view: %+v", v)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
