package control

import (
	"testing"

	"github.com/wuspy/turretd/internal/turret"
)

func TestParseRequest_Ping(t *testing.T) {
	content, ok := ParseRequest([]byte(`"ping"`))
	if !ok {
		t.Fatal("expected ok=true for ping")
	}
	if content.Kind != turret.ContentPing {
		t.Fatalf("expected ContentPing, got %v", content.Kind)
	}
}

func TestParseRequest_OtherLiteralStringIsRejected(t *testing.T) {
	_, ok := ParseRequest([]byte(`"pong"`))
	if ok {
		t.Fatal("expected ok=false for an unrecognized literal string")
	}
}

func TestParseRequest_Move(t *testing.T) {
	content, ok := ParseRequest([]byte(`{"pitch": 0.5, "yaw": -0.25}`))
	if !ok {
		t.Fatal("expected ok=true for a move request")
	}
	if content.Kind != turret.ContentCommand || content.Command.Kind != turret.CommandMove {
		t.Fatalf("expected a move command, got %+v", content)
	}
	if content.Command.Pitch != 0.5 || content.Command.Yaw != -0.25 {
		t.Fatalf("unexpected pitch/yaw: %+v", content.Command)
	}
}

func TestParseRequest_NamedCommand(t *testing.T) {
	content, ok := ParseRequest([]byte(`{"command": "fire"}`))
	if !ok {
		t.Fatal("expected ok=true for a named command")
	}
	if content.Command.Kind != turret.CommandFire {
		t.Fatalf("expected fire, got %v", content.Command.Kind)
	}
}

func TestParseRequest_UnknownCommandNameIsRejected(t *testing.T) {
	_, ok := ParseRequest([]byte(`{"command": "self_destruct"}`))
	if ok {
		t.Fatal("expected ok=false for an unknown command name")
	}
}

func TestParseRequest_MalformedJSONIsRejected(t *testing.T) {
	_, ok := ParseRequest([]byte(`{not json`))
	if ok {
		t.Fatal("expected ok=false for malformed JSON")
	}
}

func TestParseRequest_EmptyObjectIsRejected(t *testing.T) {
	_, ok := ParseRequest([]byte(`{}`))
	if ok {
		t.Fatal("expected ok=false for an object matching no known shape")
	}
}

func TestEncodeQueueState(t *testing.T) {
	line := EncodeQueueState(1, 3)
	want := `{"queue_position":1,"num_clients":3}` + "\n"
	if string(line) != want {
		t.Fatalf("got %q want %q", line, want)
	}
}

func TestEncodeHardwareState(t *testing.T) {
	line := EncodeHardwareState(turret.HardwareState{PitchPos: 10, YawPos: 20, Status: turret.StatusReady})
	want := `{"status":"ready","pitch":10,"yaw":20}` + "\n"
	if string(line) != want {
		t.Fatalf("got %q want %q", line, want)
	}
}
