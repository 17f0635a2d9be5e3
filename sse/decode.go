package sse

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fwojciec/hrchat"
)

// Decoder converts raw chunks into events. The zero value decodes strict
// JSON and is ready to use.
type Decoder struct {
	loose bool
}

// Option configures a [Decoder].
type Option func(*Decoder)

// WithLooseJSON makes the decoder run [Repair] on every data line before
// parsing. Use it against servers that emit Python-style payloads.
func WithLooseJSON() Option {
	return func(d *Decoder) { d.loose = true }
}

// NewDecoder creates a [Decoder] with the given options.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Decode converts chunk into one event using a strict [Decoder].
func Decode(chunk string) (hrchat.Event, error) {
	var d Decoder
	return d.Decode(chunk)
}

// Decode converts one raw chunk into exactly one event.
//
// The last event line names the event. A payload may be split across
// several data lines, which are joined with newlines in order before
// parsing. A delta whose data lines are each a complete document instead
// concatenates their fragments. Unknown or missing event names decode to
// [hrchat.EventError].
func (d *Decoder) Decode(chunk string) (hrchat.Event, error) {
	name, data := scan(chunk)
	label := name
	if label == "" {
		label = "unnamed"
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s event has no data line", ErrDecode, label)
	}
	if d.loose {
		for i := range data {
			data[i] = Repair(data[i])
		}
	}
	joined := strings.Join(data, "\n")

	switch name {
	case EventMetadata:
		var msg hrchat.ChatMessage
		if err := payload(name, joined, &msg); err != nil {
			return nil, err
		}
		return hrchat.EventMetadata{Message: msg}, nil

	case EventDelta:
		text, err := deltaText(data, joined)
		if err != nil {
			return nil, err
		}
		return hrchat.EventDelta{Text: text}, nil

	case EventTitleGeneration:
		var title string
		if err := payload(name, joined, &title); err != nil {
			return nil, err
		}
		return hrchat.EventTitleGeneration{Title: title}, nil

	case EventStreamComplete:
		var msg hrchat.ChatMessage
		if err := payload(name, joined, &msg); err != nil {
			return nil, err
		}
		msg.Message = ""
		return hrchat.EventStreamComplete{Message: msg}, nil

	default:
		var text string
		if err := payload(label, joined, &text); err != nil {
			return nil, err
		}
		return hrchat.EventError{Event: name, Message: text}, nil
	}
}

// deltaText concatenates per-line fragments when every data line is a
// complete document, and otherwise parses the joined lines as one payload.
func deltaText(data []string, joined string) (string, error) {
	whole := true
	for _, line := range data {
		if !json.Valid([]byte(line)) {
			whole = false
			break
		}
	}
	if !whole {
		var text string
		err := payload(EventDelta, joined, &text)
		return text, err
	}
	var sb strings.Builder
	for _, line := range data {
		var fragment string
		if err := payload(EventDelta, line, &fragment); err != nil {
			return "", err
		}
		sb.WriteString(fragment)
	}
	return sb.String(), nil
}

// payload decodes the "c" field of the data text into v.
func payload(name, text string, v any) error {
	var env struct {
		C json.RawMessage `json:"c"`
	}
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return fmt.Errorf("%w: %s data: %v", ErrDecode, name, err)
	}
	if len(env.C) == 0 {
		return fmt.Errorf("%w: %s data: missing \"c\" field", ErrDecode, name)
	}
	if err := json.Unmarshal(env.C, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrDecode, name, err)
	}
	return nil
}

// scan returns the last event name in chunk and the ordered data values.
// Empty lines, comments and unknown fields are skipped.
func scan(chunk string) (string, []string) {
	chunk = strings.ReplaceAll(chunk, "\r\n", "\n")
	chunk = strings.ReplaceAll(chunk, "\r", "\n")

	var (
		name string
		data []string
	)
	for _, line := range strings.Split(chunk, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "event:"); ok {
			name = strings.TrimSpace(rest)
		} else if rest, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimSpace(rest))
		}
	}
	return name, data
}

// Repair rewrites a loosely-formatted payload into JSON. The substitutions
// run in a fixed order: True, False and None become true, false and null,
// existing double quotes are escaped, then single quotes become double
// quotes.
func Repair(s string) string {
	s = strings.ReplaceAll(s, "True", "true")
	s = strings.ReplaceAll(s, "False", "false")
	s = strings.ReplaceAll(s, "None", "null")
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "'", `"`)
	return s
}
