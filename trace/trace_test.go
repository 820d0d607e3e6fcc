package trace

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"
)

func sample() []Event {
	return []Event{
		{Seq: 1, Kind: KindInject, Src: External, Dst: 0, DstPort: 0x12, Value: 'a'},
		{Seq: 2, Kind: KindEval, Dst: 0, Vector: 0x0100},
		{Seq: 3, Depth: 1, Kind: KindWrite, Src: 0, SrcPort: 0x18, Dst: 1, DstPort: 0x12, Value: 'a'},
		{Seq: 4, Depth: 1, Kind: KindIdle, Dst: 1, DstPort: 0x12, Value: 'a'},
		{Seq: 5, Depth: 1, Kind: KindFault, Dst: 1, Detail: "trap"},
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	for _, ev := range sample() {
		m.Record(ev)
	}
	got := m.Events()
	if len(got) != 5 {
		t.Fatalf("got %d events, want 5", len(got))
	}
	got[0].Value = 0
	if m.Events()[0].Value != 'a' {
		t.Error("Events should return a copy")
	}
	if f := m.Filter(KindWrite, KindIdle); len(f) != 2 || f[0].Seq != 3 || f[1].Seq != 4 {
		t.Errorf("Filter = %+v", f)
	}
	m.Reset()
	if len(m.Events()) != 0 {
		t.Error("Reset should drop events")
	}
}

func TestMulti(t *testing.T) {
	a, b := NewMemory(), NewMemory()
	if Multi() != Nop {
		t.Error("empty Multi should be Nop")
	}
	if Multi(nil, a) != Recorder(a) {
		t.Error("single Multi should unwrap")
	}
	r := Multi(a, nil, b)
	r.Record(Event{Seq: 1})
	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Error("Multi should fan out to every recorder")
	}
}

func TestEvent_String(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{sample()[2], "write 0:0x18 -> 1:0x12"},
		{sample()[1], "eval 0 @0x0100"},
		{sample()[4], "fault 1: trap"},
	}
	for _, tt := range tests {
		if got := tt.ev.String(); !strings.Contains(got, tt.want) {
			t.Errorf("String() = %q, want substring %q", got, tt.want)
		}
	}
}

func TestZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	z := NewZap(zap.New(core))
	z.Record(sample()[2])
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	if entries[0].Message != "write" || entries[0].ContextMap()["dst"] != int64(1) {
		t.Errorf("unexpected entry %+v", entries[0])
	}
}

func TestSQLite_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trace.db")

	for _, session := range []string{"s1", "s2"} {
		rec, err := OpenSQLite(ctx, path, session)
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		for _, ev := range sample() {
			rec.Record(ev)
		}
		if err := rec.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	sessions, err := Sessions(ctx, path)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0] != "s1" || sessions[1] != "s2" {
		t.Errorf("Sessions = %v", sessions)
	}

	got, err := Load(ctx, path, "s2")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := sample()
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSQLite_DuplicateSeqKeepsFirstError(t *testing.T) {
	ctx := context.Background()
	rec, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "dup.db"), "s")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	rec.Record(Event{Seq: 1, Kind: KindEval})
	rec.Record(Event{Seq: 1, Kind: KindEval})
	if rec.Err() == nil {
		t.Error("expected primary key violation")
	}
	if err := rec.Close(); err == nil {
		t.Error("Close should report the recording error")
	}
}
