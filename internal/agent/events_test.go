package agent

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestEventMapper_ToolEndTruncation(t *testing.T) {
	m := newEventMapper(10)

	ev := m.toolEnd("read_file", strings.Repeat("x", 25))
	if len(ev.Output) != 10 {
		t.Errorf("Expected output truncated to 10 bytes, got %d", len(ev.Output))
	}

	short := m.toolEnd("read_file", "tiny")
	if short.Output != "tiny" {
		t.Errorf("Expected short output untouched, got %q", short.Output)
	}
}

func TestEventMapper_TruncationKeepsValidUTF8(t *testing.T) {
	m := newEventMapper(5)

	// 2-byte runes; a byte-boundary cut at 5 would split the third rune
	ev := m.toolEnd("read_file", "ααααα")
	if ev.Output != "αα" {
		t.Errorf("Expected cut backed off to a rune boundary, got %q", ev.Output)
	}
	if !utf8.ValidString(ev.Output) {
		t.Errorf("Expected valid UTF-8 output, got %q", ev.Output)
	}
}

func TestEventMapper_ZeroLimitDisablesTruncation(t *testing.T) {
	m := newEventMapper(0)
	ev := m.toolEnd("read_file", strings.Repeat("x", 1000))
	if len(ev.Output) != 1000 {
		t.Errorf("Expected untruncated output, got %d bytes", len(ev.Output))
	}
}

func TestEventMapper_ToolsUsedOrder(t *testing.T) {
	m := newEventMapper(500)
	m.toolStart("list_directory", nil)
	m.toolStart("read_file", nil)
	m.toolStart("list_directory", nil)

	done := m.done()
	want := []string{"list_directory", "read_file", "list_directory"}
	if !reflect.DeepEqual(done.ToolsUsed, want) {
		t.Errorf("Expected %v, got %v", want, done.ToolsUsed)
	}
}

func TestEventMapper_DoneWithoutTools(t *testing.T) {
	done := newEventMapper(500).done()
	if done.ToolsUsed == nil {
		t.Fatal("Expected empty slice, not nil")
	}

	raw, err := json.Marshal(done)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(raw), `"tools_used":[]`) {
		t.Errorf("Expected tools_used present as empty array, got %s", raw)
	}
}

func TestSafeInput_StructuredPassesThrough(t *testing.T) {
	input := map[string]interface{}{"path": "/tmp", "recursive": true}
	got := safeInput(input)
	if !reflect.DeepEqual(got, input) {
		t.Errorf("Expected structured input untouched, got %v", got)
	}
}

func TestSafeInput_UnserializableBecomesString(t *testing.T) {
	input := map[string]interface{}{"ch": make(chan int)}
	got := safeInput(input)
	if _, ok := got.(string); !ok {
		t.Errorf("Expected string fallback, got %T", got)
	}
}

func TestSafeInput_NilBecomesEmptyObject(t *testing.T) {
	got := safeInput(nil)
	m, ok := got.(map[string]interface{})
	if !ok || len(m) != 0 {
		t.Errorf("Expected empty object, got %v", got)
	}
}

func TestStreamEvent_WireTags(t *testing.T) {
	cases := []struct {
		event StreamEvent
		tag   string
	}{
		{NewTokenEvent("hi"), "token"},
		{newEventMapper(0).toolStart("read_file", nil), "tool_start"},
		{newEventMapper(0).toolEnd("read_file", "out"), "tool_end"},
		{newEventMapper(0).done(), "done"},
		{NewErrorEvent("boom"), "error"},
	}

	for _, c := range cases {
		if c.event.Event() != c.tag {
			t.Errorf("Expected tag %s, got %s", c.tag, c.event.Event())
		}
		raw, err := json.Marshal(c.event)
		if err != nil {
			t.Fatalf("Marshal %s failed: %v", c.tag, err)
		}
		var decoded map[string]interface{}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("Unmarshal %s failed: %v", c.tag, err)
		}
		if decoded["type"] != c.tag {
			t.Errorf("Expected type field %s inside payload, got %v", c.tag, decoded["type"])
		}
	}
}
