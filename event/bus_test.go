package event_test

import (
	"testing"

	"github.com/reverb-labs/tempo/event"
	"github.com/reverb-labs/tempo/job"
)

func TestBus_PublishToSubscriber(t *testing.T) {
	b := event.NewBus(nil)

	var got []event.Event
	b.Subscribe(event.KindJobCompleted, func(e event.Event) {
		got = append(got, e)
	})

	j := &job.Job{Name: "send-email"}
	b.Publish(event.Event{Kind: event.KindJobCompleted, Job: j})

	if len(got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(got))
	}
	if got[0].Job.Name != "send-email" {
		t.Errorf("Job.Name = %q, want %q", got[0].Job.Name, "send-email")
	}
	if got[0].At.IsZero() {
		t.Error("expected At to be stamped")
	}
}

func TestBus_KindIsolation(t *testing.T) {
	b := event.NewBus(nil)

	var completed, failed int
	b.Subscribe(event.KindJobCompleted, func(event.Event) { completed++ })
	b.Subscribe(event.KindJobFailed, func(event.Event) { failed++ })

	b.Publish(event.Event{Kind: event.KindJobCompleted, Job: &job.Job{}})
	b.Publish(event.Event{Kind: event.KindJobCompleted, Job: &job.Job{}})
	b.Publish(event.Event{Kind: event.KindJobFailed, Job: &job.Job{}})

	if completed != 2 {
		t.Errorf("completed = %d, want 2", completed)
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
}

func TestBus_CancelDetaches(t *testing.T) {
	b := event.NewBus(nil)

	var count int
	sub := b.Subscribe(event.KindJobStarted, func(event.Event) { count++ })

	b.Publish(event.Event{Kind: event.KindJobStarted, Job: &job.Job{}})
	sub.Cancel()
	sub.Cancel() // Second cancel is a no-op.
	b.Publish(event.Event{Kind: event.KindJobStarted, Job: &job.Job{}})

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestBus_PanickingSubscriberIsolated(t *testing.T) {
	b := event.NewBus(nil)

	var delivered int
	b.Subscribe(event.KindJobFailed, func(event.Event) { panic("boom") })
	b.Subscribe(event.KindJobFailed, func(event.Event) { delivered++ })

	b.Publish(event.Event{Kind: event.KindJobFailed, Job: &job.Job{}})

	if delivered != 1 {
		t.Errorf("delivered = %d, want 1 despite sibling panic", delivered)
	}
}
