// Package protocol is the line protocol of the pagerd control socket.
//
// Each request is one line, COMMAND[:args], answered with one JSON line.
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Command represents a command sent to the core engine
type Command struct {
	Type string                 `json:"type"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// Response represents a response from the core engine
type Response struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Protocol commands
const (
	CmdStatus  = "STATUS"
	CmdForm    = "FORM"
	CmdEdit    = "EDIT"
	CmdType    = "TYPE"
	CmdOption  = "OPTION"
	CmdAmp     = "AMP"
	CmdSend    = "SEND"
	CmdHistory = "HISTORY"
	CmdStats   = "STATS"
	CmdPing    = "PING"
	CmdQuit    = "QUIT"
)

// ParseCommand parses a text command into a Command struct.
//
//	EDIT:<field>:<text>      text may be empty and may contain ':'
//	TYPE:<index>
//	OPTION:<selector>:<index>
//	AMP:on|off
//	HISTORY[:<limit>] or HISTORY:capcode:<capcode>[:<limit>]
func ParseCommand(text string) (*Command, error) {
	text = strings.TrimRight(text, "\r\n")
	parts := strings.SplitN(text, ":", 2)

	cmd := &Command{
		Type: strings.ToUpper(strings.TrimSpace(parts[0])),
		Args: make(map[string]interface{}),
	}
	if cmd.Type == "" {
		return nil, fmt.Errorf("empty command")
	}

	args := ""
	hasArgs := len(parts) > 1
	if hasArgs {
		args = parts[1]
	}

	switch cmd.Type {
	case CmdEdit:
		// EDIT:capcode:1234567
		editParts := strings.SplitN(args, ":", 2)
		if !hasArgs || len(editParts) < 2 || editParts[0] == "" {
			return nil, fmt.Errorf("usage: EDIT:<field>:<text>")
		}
		cmd.Args["field"] = strings.ToLower(editParts[0])
		cmd.Args["text"] = editParts[1]

	case CmdType:
		index, err := parseIndex(args)
		if err != nil {
			return nil, fmt.Errorf("usage: TYPE:<index>: %w", err)
		}
		cmd.Args["index"] = index

	case CmdOption:
		optionParts := strings.SplitN(args, ":", 2)
		if len(optionParts) < 2 || optionParts[0] == "" {
			return nil, fmt.Errorf("usage: OPTION:<selector>:<index>")
		}
		index, err := parseIndex(optionParts[1])
		if err != nil {
			return nil, fmt.Errorf("usage: OPTION:<selector>:<index>: %w", err)
		}
		cmd.Args["selector"] = strings.ToLower(optionParts[0])
		cmd.Args["index"] = index

	case CmdAmp:
		switch strings.ToLower(strings.TrimSpace(args)) {
		case "on", "1", "true":
			cmd.Args["on"] = true
		case "off", "0", "false":
			cmd.Args["on"] = false
		default:
			return nil, fmt.Errorf("usage: AMP:on|off")
		}

	case CmdHistory:
		if err := parseHistory(cmd, args); err != nil {
			return nil, err
		}
	}

	return cmd, nil
}

func parseIndex(s string) (int, error) {
	index, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	return index, nil
}

func parseHistory(cmd *Command, args string) error {
	if args == "" {
		return nil
	}

	fields := strings.Split(args, ":")
	if strings.EqualFold(fields[0], "capcode") {
		if len(fields) < 2 {
			return fmt.Errorf("usage: HISTORY:capcode:<capcode>[:<limit>]")
		}
		capcode, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("invalid capcode %q", fields[1])
		}
		cmd.Args["capcode"] = capcode
		fields = fields[2:]
	}

	if len(fields) > 0 {
		limit, err := strconv.Atoi(fields[0])
		if err != nil || limit < 0 {
			return fmt.Errorf("invalid limit %q", fields[0])
		}
		cmd.Args["limit"] = limit
	}
	return nil
}

// String converts a Response to a JSON line
func (r *Response) String() string {
	data, _ := json.Marshal(r)
	return string(data)
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(data map[string]interface{}) *Response {
	return &Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}
