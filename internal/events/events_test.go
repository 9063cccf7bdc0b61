// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package events

import (
	"context"
	"reflect"
	"testing"
)

func TestBusDelivery(t *testing.T) {
	b := NewBus()
	var got []string
	unsubA := b.Subscribe(func(ev Event) { got = append(got, "a:"+ev.Message) })
	b.Subscribe(func(ev Event) { got = append(got, "b:"+ev.Message) })

	b.Publish(Event{Type: EventStatusText, Message: "1"})
	unsubA()
	b.Publish(Event{Type: EventStatusText, Message: "2"})

	want := []string{"a:1", "b:1", "b:2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("deliveries = %v, want %v", got, want)
	}
}

func TestRecorderFilter(t *testing.T) {
	b := NewBus()
	r := Record(b)
	b.Publish(Event{Type: EventSchemaChanged, Schema: "sakila"})
	b.Publish(Event{Type: EventTitleChanged})
	b.Publish(Event{Type: EventSchemaChanged, Schema: "world"})

	if n := len(r.Events()); n != 3 {
		t.Fatalf("recorded %d events, want 3", n)
	}
	schemas := r.Events(EventSchemaChanged)
	if len(schemas) != 2 || schemas[1].Schema != "world" {
		t.Errorf("filtered events = %+v", schemas)
	}
}

func TestNilBusPublish(t *testing.T) {
	var b *Bus
	b.Publish(Event{Type: EventLogChanged})
}

func TestIdleQueue(t *testing.T) {
	q := NewIdleQueue()
	var ran []string

	if !q.Post("keepalive", func(context.Context) { ran = append(ran, "keepalive") }) {
		t.Fatalf("first Post() rejected")
	}
	if q.Post("keepalive", func(context.Context) { ran = append(ran, "dup") }) {
		t.Errorf("duplicate Post() accepted")
	}
	q.Post("reconnect", func(context.Context) {
		ran = append(ran, "reconnect")
		q.Post("keepalive", func(context.Context) { ran = append(ran, "keepalive-2") })
	})

	select {
	case <-q.Ready():
	default:
		t.Errorf("Ready() not signalled after Post")
	}
	if got := q.Pending(); !reflect.DeepEqual(got, []string{"keepalive", "reconnect"}) {
		t.Errorf("Pending() = %v", got)
	}

	if n := q.Drain(context.Background()); n != 3 {
		t.Errorf("Drain() ran %d tasks, want 3", n)
	}
	want := []string{"keepalive", "reconnect", "keepalive-2"}
	if !reflect.DeepEqual(ran, want) {
		t.Errorf("ran = %v, want %v", ran, want)
	}
	if n := q.Drain(context.Background()); n != 0 {
		t.Errorf("second Drain() ran %d tasks", n)
	}
}
