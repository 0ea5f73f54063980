package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"dealflow/internal/service/pipeline/domain"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader 依次返回预置消息，耗尽后阻塞到 ctx 结束
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	fetchErrs []error
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type collectingSink struct {
	mu     sync.Mutex
	events []*domain.PipelineEvent
	err    error
}

func (s *collectingSink) Name() string { return "collect" }

func (s *collectingSink) Deliver(_ context.Context, e *domain.PipelineEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *collectingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func eventMessage(t *testing.T, offset int64, event *domain.PipelineEvent) kafka.Message {
	t.Helper()
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Topic: "pipeline-events", Offset: offset, Value: raw}
}

func runConsumer(t *testing.T, reader *fakeReader, sink *collectingSink, wantCommits int) {
	t.Helper()
	a := &EventConsumerAdapter{reader: reader, sink: sink, timeout: time.Second, retry: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return len(reader.committedOffsets()) == wantCommits }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestEventConsumerDeliversAndCommits(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		eventMessage(t, 1, &domain.PipelineEvent{EventID: "a", Type: domain.EventActionLogCreated, Deal: &domain.Deal{ID: 1}}),
		eventMessage(t, 2, &domain.PipelineEvent{EventID: "b", Type: domain.EventDealStatusChanged, Deal: &domain.Deal{ID: 1}}),
	}}
	sink := &collectingSink{}

	runConsumer(t, reader, sink, 2)

	assert.Equal(t, []int64{1, 2}, reader.committedOffsets())
	require.Equal(t, 2, sink.count())
	assert.Equal(t, "a", sink.events[0].EventID)
	assert.Equal(t, domain.EventDealStatusChanged, sink.events[1].Type)
}

func TestEventConsumerSkipsUndecodableMessages(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Topic: "pipeline-events", Offset: 7, Value: []byte("not json")},
		eventMessage(t, 8, &domain.PipelineEvent{EventID: "c", Type: domain.EventDealCreated}),
	}}
	sink := &collectingSink{}

	runConsumer(t, reader, sink, 2)

	assert.Equal(t, []int64{7, 8}, reader.committedOffsets())
	assert.Equal(t, 1, sink.count())
}

func TestEventConsumerCommitsEvenWhenSinkFails(t *testing.T) {
	reader := &fakeReader{
		fetchErrs: []error{errors.New("broker not ready")},
		msgs:      []kafka.Message{eventMessage(t, 3, &domain.PipelineEvent{EventID: "d", Type: domain.EventActionLogCreated})},
	}
	sink := &collectingSink{err: errors.New("slack down")}

	runConsumer(t, reader, sink, 1)

	assert.Equal(t, []int64{3}, reader.committedOffsets())
	assert.Equal(t, 1, sink.count())
}
