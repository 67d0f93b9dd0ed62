// Package client talks to a running pagerd over its control socket.
package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/dougsko/pagerd/pkg/protocol"
)

// SocketClient represents a client connection to the core engine
type SocketClient struct {
	socketPath string
	timeout    time.Duration
}

// NewSocketClient creates a new socket client
func NewSocketClient(socketPath string) *SocketClient {
	return &SocketClient{
		socketPath: socketPath,
		timeout:    15 * time.Second,
	}
}

// SetTimeout changes the per command timeout
func (c *SocketClient) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// SendCommand sends a command and returns the response
func (c *SocketClient) SendCommand(cmd string) (*protocol.Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket: %w", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	if _, err := conn.Write([]byte(cmd + "\n")); err != nil {
		return nil, fmt.Errorf("send error: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		return nil, fmt.Errorf("no response received")
	}

	var response protocol.Response
	if err := json.Unmarshal(scanner.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	return &response, nil
}

// command sends cmd and fails on an unsuccessful response
func (c *SocketClient) command(cmd string) (*protocol.Response, error) {
	resp, err := c.SendCommand(cmd)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%s: %s", cmd, resp.Error)
	}
	return resp, nil
}

// decode converts one data entry into out
func decode(resp *protocol.Response, key string, out interface{}) error {
	value, ok := resp.Data[key]
	if !ok {
		return fmt.Errorf("%s not found in response", key)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return nil
}

// GetStatus gets the current daemon status as raw JSON fields
func (c *SocketClient) GetStatus() (map[string]interface{}, error) {
	resp, err := c.command(protocol.CmdStatus)
	if err != nil {
		return nil, err
	}

	var status map[string]interface{}
	if err := decode(resp, "status", &status); err != nil {
		return nil, err
	}
	return status, nil
}

// GetForm gets the form view
func (c *SocketClient) GetForm() (map[string]interface{}, error) {
	return c.view(protocol.CmdForm)
}

// Edit changes a text field
func (c *SocketClient) Edit(field, text string) (map[string]interface{}, error) {
	return c.view(fmt.Sprintf("%s:%s:%s", protocol.CmdEdit, field, text))
}

// SetType selects a message type by index
func (c *SocketClient) SetType(index int) (map[string]interface{}, error) {
	return c.view(fmt.Sprintf("%s:%d", protocol.CmdType, index))
}

// SetOption selects an option by index
func (c *SocketClient) SetOption(selector string, index int) (map[string]interface{}, error) {
	return c.view(fmt.Sprintf("%s:%s:%d", protocol.CmdOption, selector, index))
}

// SetAmplifier switches the amplifier
func (c *SocketClient) SetAmplifier(on bool) (map[string]interface{}, error) {
	state := "off"
	if on {
		state = "on"
	}
	return c.view(fmt.Sprintf("%s:%s", protocol.CmdAmp, state))
}

// Send starts a transmission of the current form
func (c *SocketClient) Send() (map[string]interface{}, error) {
	return c.view(protocol.CmdSend)
}

func (c *SocketClient) view(cmd string) (map[string]interface{}, error) {
	resp, err := c.command(cmd)
	if err != nil {
		return nil, err
	}

	var view map[string]interface{}
	if err := decode(resp, "view", &view); err != nil {
		return nil, err
	}
	return view, nil
}

// GetHistory gets recent transmissions, optionally for one capcode
func (c *SocketClient) GetHistory(limit int, capcode *int) ([]map[string]interface{}, error) {
	cmd := protocol.CmdHistory
	if capcode != nil {
		cmd = fmt.Sprintf("%s:capcode:%d", cmd, *capcode)
	}
	if limit > 0 {
		cmd = fmt.Sprintf("%s:%d", cmd, limit)
	}

	resp, err := c.command(cmd)
	if err != nil {
		return nil, err
	}

	var transmissions []map[string]interface{}
	if resp.Data["transmissions"] == nil {
		return transmissions, nil
	}
	if err := decode(resp, "transmissions", &transmissions); err != nil {
		return nil, err
	}
	return transmissions, nil
}

// GetStats gets the lifetime history counters
func (c *SocketClient) GetStats() (map[string]interface{}, error) {
	resp, err := c.command(protocol.CmdStats)
	if err != nil {
		return nil, err
	}

	var stats map[string]interface{}
	if err := decode(resp, "stats", &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// Ping tests the connection
func (c *SocketClient) Ping() error {
	_, err := c.command(protocol.CmdPing)
	return err
}

// IsConnected tests if the daemon is reachable
func (c *SocketClient) IsConnected() bool {
	return c.Ping() == nil
}
