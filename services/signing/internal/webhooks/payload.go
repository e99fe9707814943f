package webhooks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrMalformedPayload   = errors.New("webhook payload is not a JSON object")
	ErrMissingCorrelation = errors.New("webhook event has no correlation identifier")
	ErrMissingEventCode   = errors.New("webhook event has no event code")
)

// Shape names the payload layout a delivery arrived in.
type Shape string

const (
	ShapeFlat   Shape = "flat"   // {"correlation":"..","event":"completed"}
	ShapeNested Shape = "nested" // {"event":{"event_type":".."},"signature_request":{"signature_request_id":".."}}
	ShapeBatch  Shape = "batch"  // {"events":[...]} of flat or nested items
)

// Event is one provider notification reduced to what the reconciler needs.
type Event struct {
	CorrelationID string
	Code          string
}

type Delivery struct {
	Shape   Shape
	Events  []Event
	Ignored []string
}

var (
	correlationKeys = []string{"correlation", "correlation_id", "signature_request_id", "signatureRequestId", "request_id"}
	eventKeys       = []string{"event", "event_type", "eventType", "type", "status"}
	nestedEventKeys = []string{"event_type", "type"}
	knownKeys       = map[string]bool{
		"signature_request": true,
		"events":            true,
	}
)

func init() {
	for _, k := range correlationKeys {
		knownKeys[k] = true
	}
	for _, k := range eventKeys {
		knownKeys[k] = true
	}
}

// ParseDelivery normalizes every known payload version to a list of events.
// Keys it does not recognise are returned in Ignored and otherwise dropped.
func ParseDelivery(raw []byte) (Delivery, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return Delivery{}, ErrMalformedPayload
	}

	var d Delivery
	if batch, ok := obj["events"]; ok {
		d.Shape = ShapeBatch
		var items []json.RawMessage
		if err := json.Unmarshal(batch, &items); err != nil || len(items) == 0 {
			return Delivery{}, fmt.Errorf("%w: events must be a non-empty array", ErrMalformedPayload)
		}
		d.Ignored = unknownKeys(obj, "")
		for i, item := range items {
			itemObj, err := decodeObject(item)
			if err != nil {
				return Delivery{}, fmt.Errorf("%w: events[%d]", ErrMalformedPayload, i)
			}
			ev, _, err := parseEvent(itemObj)
			if err != nil {
				return Delivery{}, fmt.Errorf("events[%d]: %w", i, err)
			}
			d.Events = append(d.Events, ev)
			d.Ignored = append(d.Ignored, unknownKeys(itemObj, fmt.Sprintf("events[%d].", i))...)
		}
		return d, nil
	}

	ev, shape, err := parseEvent(obj)
	if err != nil {
		return Delivery{}, err
	}
	d.Shape = shape
	d.Events = []Event{ev}
	d.Ignored = unknownKeys(obj, "")
	return d, nil
}

func parseEvent(obj map[string]json.RawMessage) (Event, Shape, error) {
	shape := ShapeFlat
	var ev Event

	ev.CorrelationID = firstString(obj, correlationKeys)
	if ev.CorrelationID == "" {
		if nested, err := decodeObject(obj["signature_request"]); err == nil {
			ev.CorrelationID = firstString(nested, []string{"signature_request_id", "id"})
			shape = ShapeNested
		}
	}

	if nested, err := decodeObject(obj["event"]); err == nil {
		ev.Code = firstString(nested, nestedEventKeys)
		shape = ShapeNested
	}
	if ev.Code == "" {
		ev.Code = firstString(obj, eventKeys)
	}

	switch {
	case ev.CorrelationID == "":
		return Event{}, shape, ErrMissingCorrelation
	case ev.Code == "":
		return Event{}, shape, ErrMissingEventCode
	}
	return ev, shape, nil
}

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, ErrMalformedPayload
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// firstString returns the first key holding a non-empty string or number.
func firstString(obj map[string]json.RawMessage, keys []string) string {
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil && n.String() != "" {
			return n.String()
		}
	}
	return ""
}

func unknownKeys(obj map[string]json.RawMessage, prefix string) []string {
	var out []string
	for k := range obj {
		if !knownKeys[k] {
			out = append(out, prefix+k)
		}
	}
	sort.Strings(out)
	return out
}
