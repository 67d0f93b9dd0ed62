// Package fields holds the incremental input filters for the pager form.
//
// Every filter remembers the last text it accepted. An edit is either
// accepted as typed, accepted after being reshaped, or rejected, in which
// case the field falls back to the remembered text. Rejections are never
// errors; the caller simply redisplays what Edit returns.
package fields

import (
	"strconv"
	"unicode/utf8"

	"github.com/dougsko/pagerd/pkg/pocsag"
)

// Capcode filters the pager address field
type Capcode struct {
	accepted string
}

// NewCapcode creates a capcode filter seeded with initial, which must itself
// be acceptable
func NewCapcode(initial string) *Capcode {
	c := &Capcode{}
	c.Edit(initial)
	return c
}

// Edit applies a new field text and returns the text the field must show
// and whether the edit was accepted
func (c *Capcode) Edit(text string) (string, bool) {
	if !capcodeAcceptable(text) {
		return c.accepted, false
	}
	c.accepted = text
	return text, true
}

func capcodeAcceptable(text string) bool {
	if text == "" {
		return true
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return false
		}
	}
	v, err := strconv.ParseUint(text, 10, 64)
	return err == nil && v <= pocsag.MaxRIC
}

// Text returns the last accepted text
func (c *Capcode) Text() string {
	return c.accepted
}

// Value returns the accepted capcode, 0 when the field is empty
func (c *Capcode) Value() int {
	v, _ := strconv.Atoi(c.accepted)
	return v
}

// Message filters the message body and tracks the displayed character count
type Message struct {
	accepted string
	count    int
	msgType  pocsag.Type
	enabled  bool
}

// NewMessage creates an empty, enabled alphanumeric body
func NewMessage() *Message {
	return &Message{msgType: pocsag.Alphanumeric, enabled: true}
}

// Edit applies a new body text. Bodies longer than 192 characters, and
// numeric bodies outside the numeric alphabet, are rejected without
// touching the count.
func (m *Message) Edit(text string) (string, bool) {
	if utf8.RuneCountInString(text) > pocsag.MaxMessageLength {
		return m.accepted, false
	}
	if m.msgType == pocsag.Numeric && !pocsag.IsNumericText(text) {
		return m.accepted, false
	}

	m.accepted = text
	m.count = utf8.RuneCountInString(text)
	return text, true
}

// SetType applies a message type change. Tone disables the body and shows a
// count of zero, Numeric clears the body.
func (m *Message) SetType(t pocsag.Type) {
	m.msgType = t

	if t == pocsag.Tone {
		m.enabled = false
		m.count = 0
	} else {
		m.enabled = true
		m.count = utf8.RuneCountInString(m.accepted)
	}

	if t == pocsag.Numeric {
		m.accepted = ""
		m.count = 0
	}
}

// Text returns the last accepted body
func (m *Message) Text() string {
	return m.accepted
}

// Count returns the displayed character count
func (m *Message) Count() int {
	return m.count
}

// Enabled reports whether the body can be edited
func (m *Message) Enabled() bool {
	return m.enabled
}

// Type returns the message type the body is filtered for
func (m *Message) Type() pocsag.Type {
	return m.msgType
}

// OptionsEnabled reports whether the date/time and charset selectors apply
// to the given message type
func OptionsEnabled(t pocsag.Type) bool {
	return t == pocsag.Alphanumeric
}
