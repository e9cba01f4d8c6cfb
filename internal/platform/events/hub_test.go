package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestClient(topics ...string) *Client {
	return &Client{
		ID:     uuid.NewString(),
		Topics: topics,
		Send:   make(chan []byte, 8),
	}
}

func receive(t *testing.T, c *Client) envelope {
	t.Helper()
	select {
	case payload := <-c.Send:
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	return envelope{}
}

func TestHub_PublishReachesServiceAndFirehose(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	firehose := newTestClient(TopicAll)
	cardio := newTestClient(ServiceTopic("cardiology"))
	ortho := newTestClient(ServiceTopic("orthopedics"))
	hub.Register(firehose)
	hub.Register(cardio)
	hub.Register(ortho)

	pid := uuid.New()
	ev := BedEvent{
		BedID:      uuid.New(),
		HospitalID: "hosp-central",
		Service:    "cardiology",
		OldState:   "free",
		NewState:   "occupied",
		PatientID:  &pid,
		Alert:      false,
		Timestamp:  time.Now(),
	}
	if err := hub.PublishBedEvent(context.Background(), ev); err != nil {
		t.Fatalf("PublishBedEvent: %v", err)
	}

	env := receive(t, firehose)
	if env.Topic != TopicAll {
		t.Errorf("expected topic %s, got %s", TopicAll, env.Topic)
	}
	if env.Type != "bed.transition" {
		t.Errorf("expected type bed.transition, got %s", env.Type)
	}

	env = receive(t, cardio)
	if env.Topic != ServiceTopic("cardiology") {
		t.Errorf("expected cardiology topic, got %s", env.Topic)
	}
	var got BedEvent
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("unmarshal event data: %v", err)
	}
	if got.BedID != ev.BedID || got.NewState != "occupied" {
		t.Errorf("event payload mismatch: %+v", got)
	}
	if got.PatientID == nil || *got.PatientID != pid {
		t.Error("expected patient id in payload")
	}

	select {
	case <-ortho.Send:
		t.Error("orthopedics subscriber must not receive cardiology events")
	default:
	}
}

func TestHub_AlertFlagSurvivesRoundTrip(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient(TopicAll)
	hub.Register(client)

	ev := BedEvent{
		BedID:     uuid.New(),
		Service:   "icu",
		OldState:  "occupied",
		NewState:  "deceased_waiting_removal",
		Alert:     true,
		Timestamp: time.Now(),
	}
	if err := hub.PublishBedEvent(context.Background(), ev); err != nil {
		t.Fatalf("PublishBedEvent: %v", err)
	}

	env := receive(t, client)
	var got BedEvent
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("unmarshal event data: %v", err)
	}
	if !got.Alert {
		t.Error("expected alert flag to be set")
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient()
	hub.Register(client)

	topic := ServiceTopic("icu")
	hub.Subscribe(client, []string{topic})
	if hub.TopicCount(topic) != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.TopicCount(topic))
	}

	hub.Unsubscribe(client, []string{topic})
	if hub.TopicCount(topic) != 0 {
		t.Fatalf("expected 0 subscribers, got %d", hub.TopicCount(topic))
	}
	if len(client.Topics) != 0 {
		t.Errorf("expected client topics cleared, got %v", client.Topics)
	}
}

func TestHub_UnregisterClosesSendAndForgetsClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient(TopicAll)
	hub.Register(client)

	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
	if _, open := <-client.Send; open {
		t.Error("expected Send channel to be closed")
	}

	// A second Unregister is a no-op, not a double close.
	hub.Unregister(client)
}

func TestHub_SlowClientDoesNotBlockPublish(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	slow := &Client{ID: uuid.NewString(), Topics: []string{TopicAll}, Send: make(chan []byte)}
	hub.Register(slow)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			hub.PublishBedEvent(context.Background(), BedEvent{
				BedID:     uuid.New(),
				Service:   "icu",
				Timestamp: time.Now(),
			})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow client")
	}
}
