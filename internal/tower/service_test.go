package tower

import (
	"context"
	"errors"
	"testing"
)

type capturePublisher struct {
	events []WinEvent
	err    error
}

func (c *capturePublisher) PublishNotableWin(_ context.Context, ev WinEvent) error {
	c.events = append(c.events, ev)
	return c.err
}

func TestPublishIfNotableThreshold(t *testing.T) {
	pub := &capturePublisher{}
	svc := NewService(nil, nil, pub, nil, Options{NotableWinMultiplier: 10.0})

	svc.publishIfNotable(context.Background(), WinEvent{Multiplier: 9.99})
	if len(pub.events) != 0 {
		t.Fatalf("below-threshold win published")
	}

	svc.publishIfNotable(context.Background(), WinEvent{Multiplier: 10.0, PayoutCents: 20_000})
	svc.publishIfNotable(context.Background(), WinEvent{Multiplier: 30.72, PayoutCents: 61_440})
	if len(pub.events) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.events))
	}
	if pub.events[1].PayoutCents != 61_440 {
		t.Fatalf("event payload wrong: %+v", pub.events[1])
	}
}

func TestPublishIfNotableSwallowsFailure(t *testing.T) {
	pub := &capturePublisher{err: errors.New("redis down")}
	svc := NewService(nil, nil, pub, nil, Options{NotableWinMultiplier: 10.0})
	// Must not panic or surface the error; settlement has already committed.
	svc.publishIfNotable(context.Background(), WinEvent{Multiplier: 12.0})
}

func TestPublishIfNotableNilPublisher(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, Options{NotableWinMultiplier: 10.0})
	svc.publishIfNotable(context.Background(), WinEvent{Multiplier: 100.0})
}
