package events

import (
	"testing"
	"time"
)

func TestAppendAndRead(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	s := NewStore()

	evts := []Event{
		{Session: "lab-a", EventType: TypeConnectRequested},
		{Session: "lab-a", EventType: TypeConnectSucceeded, ConnectionID: "c1"},
		{Session: "lab-b", EventType: TypeConnectFailed, Message: "auth failed"},
	}
	for _, e := range evts {
		if err := s.Append(e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Read(Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].Timestamp.IsZero() {
		t.Fatal("append must stamp events")
	}
}

func TestRead_Filters(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	s := NewStore()

	for _, e := range []Event{
		{Session: "lab-a", EventType: TypeConnectSucceeded, ConnectionID: "c1"},
		{Session: "lab-b", EventType: TypeConnectSucceeded, ConnectionID: "c2"},
		{Session: "lab-a", EventType: TypeDisconnected, ConnectionID: "c1"},
	} {
		if err := s.Append(e); err != nil {
			t.Fatal(err)
		}
	}

	bySession, err := s.Read(Query{Session: "lab-a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(bySession) != 2 {
		t.Fatalf("expected 2 lab-a events, got %d", len(bySession))
	}

	byType, err := s.Read(Query{EventType: TypeDisconnected})
	if err != nil {
		t.Fatal(err)
	}
	if len(byType) != 1 || byType[0].Session != "lab-a" {
		t.Fatalf("unexpected type filter result: %+v", byType)
	}

	byConn, err := s.Read(Query{ConnectionID: "c2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byConn) != 1 || byConn[0].Session != "lab-b" {
		t.Fatalf("unexpected connection filter result: %+v", byConn)
	}
}

func TestRead_LimitKeepsMostRecent(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	s := NewStore()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		err := s.Append(Event{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Session:   "lab-a",
			EventType: TypeConnectRequested,
			Message:   string(rune('a' + i)),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Read(Query{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Message != "d" || got[1].Message != "e" {
		t.Fatalf("expected the most recent events, got %+v", got)
	}
}

func TestRead_SinceFilter(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	s := NewStore()

	old := time.Now().UTC().Add(-2 * time.Hour)
	recent := time.Now().UTC()
	if err := s.Append(Event{Timestamp: old, EventType: TypeConnectRequested}); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(Event{Timestamp: recent, EventType: TypeConnectSucceeded}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Read(Query{Since: time.Now().UTC().Add(-time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].EventType != TypeConnectSucceeded {
		t.Fatalf("unexpected since filter result: %+v", got)
	}
}

func TestRead_MissingJournal(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	got, err := NewStore().Read(Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no events, got %d", len(got))
	}
}
