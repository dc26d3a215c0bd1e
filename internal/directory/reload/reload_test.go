package reload

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/kafka"
)

type recordingPublisher struct {
	events []kafka.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev kafka.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func counter(n *int) Invalidator {
	return InvalidatorFunc(func(context.Context) error {
		*n++
		return nil
	})
}

func TestReloadInvalidatesAndBroadcasts(t *testing.T) {
	var store, cache int
	pub := &recordingPublisher{}
	c := NewCoordinator("replica-a", pub, counter(&store), counter(&cache))

	res, err := c.Reload(context.Background(), Event{Reason: "admin", RequestID: "req-1"})
	if err != nil {
		t.Fatal(err)
	}
	if store != 1 || cache != 1 {
		t.Errorf("expected both targets invalidated, got %d and %d", store, cache)
	}
	if !res.Broadcast || len(pub.events) != 1 {
		t.Fatalf("expected one broadcast, got %+v", res)
	}
	ev := pub.events[0].Value.(Event)
	if ev.Origin != "replica-a" || ev.At.IsZero() || ev.RequestID != "req-1" {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestReloadSurvivesPublishFailure(t *testing.T) {
	var n int
	c := NewCoordinator("a", &recordingPublisher{err: errors.New("no brokers")}, counter(&n))
	res, err := c.Reload(context.Background(), Event{Reason: "admin"})
	if err != nil {
		t.Fatalf("local reload must succeed, got %v", err)
	}
	if n != 1 || res.Broadcast || res.Warning == "" {
		t.Errorf("unexpected result %+v (invalidations %d)", res, n)
	}
}

func TestReloadWithoutPublisherStaysLocal(t *testing.T) {
	var n int
	c := NewCoordinator("a", nil, counter(&n))
	res, err := c.Reload(context.Background(), Event{})
	if err != nil || res.Broadcast || n != 1 {
		t.Errorf("unexpected result %+v %v", res, err)
	}
}

func TestHandlerAppliesPeerEventsOnly(t *testing.T) {
	var n int
	c := NewCoordinator("a", nil, counter(&n))
	h := c.Handler()

	own, _ := json.Marshal(Event{Origin: "a"})
	peer, _ := json.Marshal(Event{Origin: "b", Reason: "admin"})
	for _, v := range [][]byte{own, peer, []byte("not json")} {
		if err := h(context.Background(), nil, v); err != nil {
			t.Fatal(err)
		}
	}
	if n != 1 {
		t.Errorf("expected only the peer event to invalidate, got %d", n)
	}
}

func TestInvalidateErrorPropagates(t *testing.T) {
	boom := InvalidatorFunc(func(context.Context) error { return errors.New("redis down") })
	c := NewCoordinator("a", nil, boom)
	if _, err := c.Reload(context.Background(), Event{}); err == nil {
		t.Error("expected the invalidation error")
	}
}
