package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"

	"delivery/internal/domain"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		r.cancel()
		return kafka.Message{}, context.Canceled
	}
	m := r.messages[0]
	r.messages = r.messages[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type recordingSink struct {
	mu      sync.Mutex
	samples []domain.LocationSample
	sources []string
}

func (s *recordingSink) UpdateLocation(_ context.Context, source string, sample domain.LocationSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
	s.sources = append(s.sources, source)
	return nil
}

func TestConsumer_RunDecodesAndCommits(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	reader := &fakeReader{
		cancel: cancel,
		messages: []kafka.Message{
			{Offset: 1, Key: []byte("R1"), Value: []byte(`{"riderId":"R1","latitude":6.5,"longitude":3.3,"accuracyMeters":4,"timestampMillis":1000}`)},
			{Offset: 2, Key: []byte("R1"), Value: []byte(`not json`)},
			{Offset: 3, Key: []byte("R2"), Value: []byte(`{"latitude":6.6,"longitude":3.4,"accuracyMeters":4,"timestampMillis":2000}`)},
			{Offset: 4, Key: []byte("R3"), Value: []byte(`{"riderId":"R4","latitude":6.6,"longitude":3.4,"timestampMillis":2000}`)},
		},
	}
	sink := &recordingSink{}
	c := newConsumer(reader, sink, nil)

	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if len(sink.samples) != 2 {
		t.Fatalf("expected 2 samples delivered, got %d", len(sink.samples))
	}
	if sink.samples[0].RiderID != "R1" || sink.samples[1].RiderID != "R2" {
		t.Errorf("unexpected riders %q, %q", sink.samples[0].RiderID, sink.samples[1].RiderID)
	}
	if sink.sources[0] != "kafka" {
		t.Errorf("expected kafka source, got %q", sink.sources[0])
	}
	if len(reader.committed) != 4 {
		t.Errorf("expected every message committed, got %v", reader.committed)
	}
}
