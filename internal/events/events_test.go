package events_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"winivox/internal/events"
	"winivox/internal/testsupport"
)

func TestAppendAssignsIdentity(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	evt, err := events.Append(ctx, store.DB(), "sub-1", events.New(events.Normalized, nil))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(evt.ID) != 32 {
		t.Fatalf("expected dashless uuid, got %q", evt.ID)
	}
	if evt.Version != events.Version || evt.Seq == 0 {
		t.Fatalf("unexpected event %#v", evt)
	}
	if evt.Timestamp.Location() != time.UTC {
		t.Fatalf("timestamp not UTC: %v", evt.Timestamp)
	}

	list, err := events.NewLog(store.DB()).ForSubmission(ctx, "sub-1")
	if err != nil {
		t.Fatalf("ForSubmission: %v", err)
	}
	if len(list) != 1 || list[0].ID != evt.ID {
		t.Fatalf("unexpected list %#v", list)
	}
	if len(list[0].Payload) != 0 {
		t.Fatalf("nil payload should read back empty, got %v", list[0].Payload)
	}
}

func TestAppendRequiresName(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if _, err := events.Append(context.Background(), store.DB(), "sub-1", events.New("  ", nil)); err == nil {
		t.Fatal("expected error for blank name")
	}
}

func TestLogOrdersBySequence(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	log := events.NewLog(store.DB())

	names := []string{events.Normalized, events.Transcribed, events.Moderated}
	for _, name := range names {
		if _, err := log.Record(ctx, name, "sub-1", map[string]any{"n": name}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if _, err := log.Record(ctx, events.Normalized, "sub-2", nil); err != nil {
		t.Fatalf("Record: %v", err)
	}

	list, err := log.ForSubmission(ctx, "sub-1")
	if err != nil {
		t.Fatalf("ForSubmission: %v", err)
	}
	if got := events.Names(list); !reflect.DeepEqual(got, names) {
		t.Fatalf("names = %v, want %v", got, names)
	}
	if list[1].Payload["n"] != events.Transcribed {
		t.Fatalf("payload not decoded: %v", list[1].Payload)
	}
}

func TestBetweenFiltersByTimestamp(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	log := events.NewLog(store.DB())

	if _, err := log.Record(ctx, events.Normalized, "sub-1", nil); err != nil {
		t.Fatalf("Record: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	cut := time.Now()
	time.Sleep(5 * time.Millisecond)
	if _, err := log.Record(ctx, events.Transcribed, "sub-1", nil); err != nil {
		t.Fatalf("Record: %v", err)
	}

	all, err := log.Between(ctx, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Between: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("open range returned %d events", len(all))
	}

	after, err := log.Between(ctx, cut, time.Time{})
	if err != nil {
		t.Fatalf("Between: %v", err)
	}
	if got := events.Names(after); !reflect.DeepEqual(got, []string{events.Transcribed}) {
		t.Fatalf("after cut = %v", got)
	}

	before, err := log.Between(ctx, time.Time{}, cut)
	if err != nil {
		t.Fatalf("Between: %v", err)
	}
	if got := events.Names(before); !reflect.DeepEqual(got, []string{events.Normalized}) {
		t.Fatalf("before cut = %v", got)
	}
}

func TestDeleteForSubmission(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	log := events.NewLog(store.DB())

	for i := 0; i < 3; i++ {
		if _, err := log.Record(ctx, events.Normalized, "sub-1", nil); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	removed, err := events.DeleteForSubmission(ctx, store.DB(), "sub-1")
	if err != nil {
		t.Fatalf("DeleteForSubmission: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed %d, want 3", removed)
	}
}
