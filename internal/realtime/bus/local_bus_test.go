package bus

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/realtime"
)

func TestLocalBusDeliversToForwarders(t *testing.T) {
	b := NewLocalBus(logger.NewNop())
	defer b.Close()

	var got []realtime.Message
	if err := b.StartForwarder(context.Background(), func(msg realtime.Message) {
		got = append(got, msg)
	}); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}

	channel := realtime.JobChannel(uuid.New())
	msg := realtime.Message{Channel: channel, Event: realtime.EventJobProgress, Data: map[string]any{"chunks_done": 2}}
	if err := b.Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("delivered %d messages, want 1", len(got))
	}
	if got[0].Channel != channel || got[0].Event != realtime.EventJobProgress {
		t.Errorf("delivered %+v", got[0])
	}
}

func TestLocalBusDropsAfterClose(t *testing.T) {
	b := NewLocalBus(logger.NewNop())

	calls := 0
	if err := b.StartForwarder(context.Background(), func(realtime.Message) { calls++ }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := b.Publish(context.Background(), realtime.Message{Channel: "job:x"}); err != nil {
		t.Fatalf("Publish after close: %v", err)
	}
	if calls != 0 {
		t.Errorf("handler called %d times after close", calls)
	}
}
