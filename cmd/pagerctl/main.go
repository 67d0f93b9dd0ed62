package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/dougsko/pagerd/pkg/client"
)

type Globals struct {
	Socket  string        `help:"Unix socket path" default:"/tmp/pagerd.sock" env:"PAGERD_API_UNIX_SOCKET"`
	Timeout time.Duration `help:"Command timeout" default:"15s"`
}

type statusCmd struct{}

func (statusCmd) Run(c *client.SocketClient) error {
	return printResult(c.GetStatus())
}

type formCmd struct{}

func (formCmd) Run(c *client.SocketClient) error {
	return printResult(c.GetForm())
}

type editCmd struct {
	Field string `arg:"" enum:"capcode,frequency,message" help:"Field to edit"`
	Text  string `arg:"" optional:"" help:"New text, empty clears the field"`
}

func (cmd editCmd) Run(c *client.SocketClient) error {
	return printResult(c.Edit(cmd.Field, cmd.Text))
}

type typeCmd struct {
	Index int `arg:"" help:"Message type index (0 alphanumeric, 1 numeric, 2 tone)"`
}

func (cmd typeCmd) Run(c *client.SocketClient) error {
	return printResult(c.SetType(cmd.Index))
}

type optionCmd struct {
	Selector string `arg:"" help:"Selector: bitrate, charset, function, datetime, gain or bandwidth"`
	Index    int    `arg:"" help:"Option index"`
}

func (cmd optionCmd) Run(c *client.SocketClient) error {
	return printResult(c.SetOption(cmd.Selector, cmd.Index))
}

type ampCmd struct {
	State string `arg:"" enum:"on,off" help:"Amplifier state"`
}

func (cmd ampCmd) Run(c *client.SocketClient) error {
	return printResult(c.SetAmplifier(cmd.State == "on"))
}

type sendCmd struct{}

func (sendCmd) Run(c *client.SocketClient) error {
	return printResult(c.Send())
}

type historyCmd struct {
	Limit   int `help:"Number of transmissions" default:"20"`
	Capcode int `help:"Only this capcode, negative for all" default:"-1"`
}

func (cmd historyCmd) Run(c *client.SocketClient) error {
	var capcode *int
	if cmd.Capcode >= 0 {
		capcode = &cmd.Capcode
	}
	return printResult(c.GetHistory(cmd.Limit, capcode))
}

type statsCmd struct{}

func (statsCmd) Run(c *client.SocketClient) error {
	return printResult(c.GetStats())
}

type pingCmd struct{}

func (pingCmd) Run(c *client.SocketClient) error {
	if err := c.Ping(); err != nil {
		return err
	}
	fmt.Println("pong")
	return nil
}

type rawCmd struct {
	Command []string `arg:"" help:"Protocol command, e.g. EDIT:capcode:1234567"`
}

func (cmd rawCmd) Run(c *client.SocketClient) error {
	response, err := c.SendCommand(strings.Join(cmd.Command, " "))
	if err != nil {
		return err
	}
	fmt.Println(response.String())
	return nil
}

var cli struct {
	Globals

	Status  statusCmd  `cmd:"" help:"Get daemon status"`
	Form    formCmd    `cmd:"" help:"Show the form"`
	Edit    editCmd    `cmd:"" help:"Edit a text field"`
	Type    typeCmd    `cmd:"" help:"Select the message type"`
	Option  optionCmd  `cmd:"" help:"Select an option"`
	Amp     ampCmd     `cmd:"" help:"Switch the amplifier"`
	Send    sendCmd    `cmd:"" help:"Transmit the current form"`
	History historyCmd `cmd:"" help:"Show recent transmissions"`
	Stats   statsCmd   `cmd:"" help:"Show transmission counters"`
	Ping    pingCmd    `cmd:"" help:"Test connection"`
	Raw     rawCmd     `cmd:"" help:"Send a raw protocol command"`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("pagerctl"),
		kong.Description("pagerd control tool"),
		kong.UsageOnError(),
	)

	socketClient := client.NewSocketClient(cli.Socket)
	socketClient.SetTimeout(cli.Timeout)

	if err := ctx.Run(socketClient); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printResult(result interface{}, err error) error {
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
