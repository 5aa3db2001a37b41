package tool

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestEndCallInvocationShape(t *testing.T) {
	t.Parallel()

	inv := EndCallInvocation("call_1")
	raw, err := json.Marshal(inv)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := `{"index":0,"id":"call_1","type":"function","function":{"name":"endCall","arguments":"{}"}}`
	if string(raw) != want {
		t.Fatalf("unexpected json:\n got %s\nwant %s", raw, want)
	}
}

func TestEndCallInvocationGeneratesID(t *testing.T) {
	t.Parallel()

	a := EndCallInvocation("")
	b := EndCallInvocation("  ")
	if !strings.HasPrefix(a.ID, "call_") || strings.Contains(a.ID, "-") {
		t.Fatalf("unexpected id: %s", a.ID)
	}
	if a.ID == b.ID {
		t.Fatal("expected distinct generated ids")
	}
}

func TestDefinitionsIncludeEndCall(t *testing.T) {
	t.Parallel()

	defs := Definitions()
	if len(defs) != 1 || defs[0].Type != ToolEndCall {
		t.Fatalf("unexpected definitions: %#v", defs)
	}
}
