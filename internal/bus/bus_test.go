package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe("conversations.", 10)
	defer cancel()

	b.Publish(Now("conversations.updated", 3))

	select {
	case evt := <-ch:
		if evt.Kind != "conversations.updated" {
			t.Errorf("got kind %q, want conversations.updated", evt.Kind)
		}
		if evt.Payload != 3 {
			t.Errorf("payload = %v, want 3", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPrefixFiltering(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe("disputes.", 10)
	defer cancel()

	b.Publish(Now("messages.updated", nil))
	b.Publish(Now("disputes.created", nil))

	select {
	case evt := <-ch:
		if evt.Kind != "disputes.created" {
			t.Errorf("got kind %q, want disputes.created", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected second event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmptyPrefixMatchesAll(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe("", 10)
	defer cancel()

	b.Publish(Now("messages.send_ack", nil))

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("empty prefix should receive every event")
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe("conversations.", 10)
	cancel()

	b.Publish(Now("conversations.updated", nil))

	select {
	case evt := <-ch:
		t.Errorf("received event after cancel: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropWhenBufferFull(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe("messages.", 1)
	defer cancel()

	b.Publish(Now("messages.updated", 1))
	b.Publish(Now("messages.updated", 2))

	evt := <-ch
	if evt.Payload != 1 {
		t.Errorf("payload = %v, want 1 (second event dropped)", evt.Payload)
	}
}
