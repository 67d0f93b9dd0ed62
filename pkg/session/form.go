package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dougsko/pagerd/pkg/fields"
	"github.com/dougsko/pagerd/pkg/options"
	"github.com/dougsko/pagerd/pkg/pocsag"
	"github.com/dougsko/pagerd/pkg/tuning"
)

// ErrUnknownField is returned for an edit of a field the form does not have
var ErrUnknownField = errors.New("unknown field")

// Field names an editable text field
type Field int

const (
	FieldCapcode Field = iota
	FieldFrequency
	FieldMessage
)

// String returns the field name used by the socket and web APIs
func (f Field) String() string {
	switch f {
	case FieldCapcode:
		return "capcode"
	case FieldFrequency:
		return "frequency"
	case FieldMessage:
		return "message"
	default:
		return "unknown"
	}
}

// ParseField maps an API field name to a Field
func ParseField(name string) (Field, error) {
	switch strings.ToLower(name) {
	case "capcode", "ric":
		return FieldCapcode, nil
	case "frequency", "freq":
		return FieldFrequency, nil
	case "message", "body":
		return FieldMessage, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// Defaults seed a new form
type Defaults struct {
	Capcode   string
	Frequency string
	Message   string
	Selection options.Selection
}

// MessageSpec is the resolved protocol payload of one send
type MessageSpec struct {
	Capcode  int                     `json:"capcode"`
	Type     pocsag.Type             `json:"type"`
	Bitrate  pocsag.BPS              `json:"bitrate"`
	Charset  pocsag.Charset          `json:"charset"`
	Function pocsag.Function         `json:"function"`
	DateTime pocsag.DateTimePosition `json:"datetime"`
	Body     string                  `json:"body"`
}

// View is a snapshot of everything the presentation layer shows
type View struct {
	Capcode        string              `json:"capcode"`
	Frequency      string              `json:"frequency"`
	Message        string              `json:"message"`
	CharCount      int                 `json:"char_count"`
	MessageEnabled bool                `json:"message_enabled"`
	OptionsEnabled bool                `json:"options_enabled"`
	Selection      options.Selection   `json:"selection"`
	Labels         map[string][]string `json:"labels"`
	SendEnabled    bool                `json:"send_enabled"`
	Busy           bool                `json:"busy"`
	State          string              `json:"state"`
	Status         Status              `json:"status"`
}

// Form holds the operator's inputs between sends
type Form struct {
	mapper    *options.Mapper
	capcode   *fields.Capcode
	frequency *fields.Frequency
	message   *fields.Message
	selection options.Selection
}

// NewForm creates a form with the given defaults
func NewForm(mapper *options.Mapper, defaults Defaults) (*Form, error) {
	if err := mapper.Validate(defaults.Selection); err != nil {
		return nil, err
	}

	f := &Form{
		mapper:    mapper,
		capcode:   fields.NewCapcode(defaults.Capcode),
		frequency: fields.NewFrequency(defaults.Frequency),
		message:   fields.NewMessage(),
		selection: defaults.Selection,
	}

	f.message.Edit(defaults.Message)
	msgType, _ := mapper.Type(defaults.Selection.Type)
	f.message.SetType(msgType)

	return f, nil
}

// Edit applies a text edit and returns what the field shows and whether
// it was taken as typed
func (f *Form) Edit(field Field, text string) (string, bool, error) {
	switch field {
	case FieldCapcode:
		shown, ok := f.capcode.Edit(text)
		return shown, ok, nil
	case FieldFrequency:
		shown, ok := f.frequency.Edit(text)
		return shown, ok, nil
	case FieldMessage:
		shown, ok := f.message.Edit(text)
		return shown, ok, nil
	}
	return "", false, fmt.Errorf("%w: %d", ErrUnknownField, field)
}

// Select changes one selector. A message type change runs the body
// handler.
func (f *Form) Select(selector string, index int) error {
	if index < 0 || index >= f.mapper.Count(selector) {
		return fmt.Errorf("%s %d: %w", selector, index, options.ErrIndexOutOfRange)
	}

	next, ok := f.selection.With(selector, index)
	if !ok {
		return fmt.Errorf("unknown selector %q", selector)
	}
	f.selection = next

	if selector == options.SelectorType {
		msgType, err := f.mapper.Type(index)
		if err != nil {
			return err
		}
		f.message.SetType(msgType)
	}
	return nil
}

// SetAmplifier switches the front end amplifier
func (f *Form) SetAmplifier(on bool) {
	f.selection.Amplifier = on
}

// Ready reports whether capcode and frequency are both filled in
func (f *Form) Ready() bool {
	return f.capcode.Text() != "" && f.frequency.Text() != ""
}

// Selection returns the selector indices
func (f *Form) Selection() options.Selection {
	return f.selection
}

// Resolve turns the form into a message and a tuning target
func (f *Form) Resolve() (MessageSpec, tuning.Spec, error) {
	r, err := f.mapper.Resolve(f.selection)
	if err != nil {
		return MessageSpec{}, tuning.Spec{}, err
	}

	msg := MessageSpec{
		Capcode:  f.capcode.Value(),
		Type:     r.Type,
		Bitrate:  r.Bitrate,
		Charset:  r.Charset,
		Function: r.Function,
		DateTime: r.DateTime,
	}
	if r.Type != pocsag.Tone {
		msg.Body = f.message.Text()
	}

	spec := tuning.Spec{
		Frequency:    tuning.Resolve(f.frequency.Text()),
		GainRF:       r.GainRF,
		BandwidthKHz: r.BandwidthKHz,
		Amplifier:    r.Amplifier,
	}

	return msg, spec, nil
}

// view fills the form part of a View
func (f *Form) view() View {
	msgType, _ := f.mapper.Type(f.selection.Type)

	labels := make(map[string][]string)
	for _, name := range options.Selectors() {
		labels[name] = f.mapper.Labels(name)
	}

	return View{
		Capcode:        f.capcode.Text(),
		Frequency:      f.frequency.Text(),
		Message:        f.message.Text(),
		CharCount:      f.message.Count(),
		MessageEnabled: f.message.Enabled(),
		OptionsEnabled: fields.OptionsEnabled(msgType),
		Selection:      f.selection,
		Labels:         labels,
	}
}
