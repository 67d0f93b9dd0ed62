package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseCommand(t *testing.T) {
	t.Run("Plain Commands", func(t *testing.T) {
		for _, text := range []string{"STATUS", "form", "SEND", "ping\n", "QUIT\r\n", "STATS"} {
			cmd, err := ParseCommand(text)
			if err != nil {
				t.Fatalf("Expected no error for %q, got: %v", text, err)
			}
			if len(cmd.Args) != 0 {
				t.Errorf("Expected no args for %q, got %v", text, cmd.Args)
			}
		}
	})

	t.Run("Type Is Upper Cased", func(t *testing.T) {
		cmd, err := ParseCommand("status")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cmd.Type != CmdStatus {
			t.Errorf("Expected type STATUS, got %s", cmd.Type)
		}
	})

	t.Run("EDIT Keeps Colons And Spaces", func(t *testing.T) {
		cmd, err := ParseCommand("EDIT:Message: meet at 12:30 ")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cmd.Args["field"] != "message" {
			t.Errorf("Expected field message, got %v", cmd.Args["field"])
		}
		if cmd.Args["text"] != " meet at 12:30 " {
			t.Errorf("Expected text ' meet at 12:30 ', got %q", cmd.Args["text"])
		}
	})

	t.Run("EDIT Empty Text", func(t *testing.T) {
		cmd, err := ParseCommand("EDIT:capcode:")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cmd.Args["text"] != "" {
			t.Errorf("Expected empty text, got %q", cmd.Args["text"])
		}
	})

	t.Run("TYPE Command", func(t *testing.T) {
		cmd, err := ParseCommand("TYPE:2")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cmd.Args["index"] != 2 {
			t.Errorf("Expected index 2, got %v", cmd.Args["index"])
		}
	})

	t.Run("OPTION Command", func(t *testing.T) {
		cmd, err := ParseCommand("OPTION:Bitrate:1")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cmd.Args["selector"] != "bitrate" || cmd.Args["index"] != 1 {
			t.Errorf("Unexpected args %v", cmd.Args)
		}
	})

	t.Run("AMP Command", func(t *testing.T) {
		on, err := ParseCommand("AMP:on")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		off, err := ParseCommand("AMP:OFF")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if on.Args["on"] != true || off.Args["on"] != false {
			t.Errorf("Unexpected amp args %v %v", on.Args, off.Args)
		}
	})

	t.Run("HISTORY Variants", func(t *testing.T) {
		cmd, err := ParseCommand("HISTORY:25")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cmd.Args["limit"] != 25 {
			t.Errorf("Expected limit 25, got %v", cmd.Args["limit"])
		}

		cmd, err = ParseCommand("HISTORY:capcode:1234567:5")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cmd.Args["capcode"] != 1234567 || cmd.Args["limit"] != 5 {
			t.Errorf("Unexpected history args %v", cmd.Args)
		}
	})

	t.Run("Malformed Commands", func(t *testing.T) {
		for _, text := range []string{
			"",
			"EDIT",
			"EDIT:capcode",
			"TYPE:x",
			"OPTION:gain",
			"OPTION:gain:high",
			"AMP:maybe",
			"HISTORY:-1",
			"HISTORY:capcode",
			"HISTORY:capcode:abc",
		} {
			if _, err := ParseCommand(text); err == nil {
				t.Errorf("Expected error for %q", text)
			}
		}
	})
}

func TestResponseString(t *testing.T) {
	resp := NewSuccessResponse(map[string]interface{}{"pong": true})

	var decoded Response
	if err := json.Unmarshal([]byte(resp.String()), &decoded); err != nil {
		t.Fatalf("Response is not JSON: %v", err)
	}
	if !decoded.Success || decoded.Data["pong"] != true {
		t.Errorf("Unexpected decoded response %+v", decoded)
	}

	errResp := NewErrorResponse("transmission in progress")
	if errResp.String() != `{"success":false,"error":"transmission in progress"}` {
		t.Errorf("Unexpected error response %s", errResp.String())
	}
}
