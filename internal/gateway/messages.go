package gateway

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nerrad567/airrelay/internal/infrastructure/mqtt"
)

// Kind identifies the inbound message types the channel understands.
type Kind int

// Inbound message kinds. KindUnknown covers any topic outside the set the
// channel subscribes to.
const (
	KindUnknown Kind = iota
	KindIncomingSMS
	KindSMSStatus
	KindDeviceStatus
)

func (k Kind) String() string {
	switch k {
	case KindIncomingSMS:
		return "incoming_sms"
	case KindSMSStatus:
		return "sms_status"
	case KindDeviceStatus:
		return "device_status"
	default:
		return "unknown"
	}
}

// KindForTopic maps a broker topic to its message kind.
func KindForTopic(topic string) Kind {
	switch topic {
	case mqtt.TopicSMSIncoming:
		return KindIncomingSMS
	case mqtt.TopicSMSStatus:
		return KindSMSStatus
	case mqtt.TopicDeviceStatus:
		return KindDeviceStatus
	default:
		return KindUnknown
	}
}

// Envelope is implemented by the three inbound message types.
type Envelope interface {
	Kind() Kind
	envelope()
}

// IncomingSMS is an SMS received by a device.
// Topic: sms/incoming
type IncomingSMS struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient,omitempty"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	IMEI      string `json:"imei"`
}

// SMSStatus reports delivery progress of an SMS the bridge queued.
// Topic: sms/status
type SMSStatus struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
	IMEI      string `json:"imei"`
}

// DeviceStatus is a periodic health report from a device.
// Topic: device/status
type DeviceStatus struct {
	IMEI           string `json:"imei"`
	Status         string `json:"status"`
	SignalStrength int    `json:"signal_strength"`
	BatteryLevel   int    `json:"battery_level"`
	Timestamp      int64  `json:"timestamp"`
}

// OutgoingSMS is published to sms/outgoing/{imei} for the device to send.
type OutgoingSMS struct {
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
	MessageID string `json:"message_id"`
}

func (IncomingSMS) Kind() Kind  { return KindIncomingSMS }
func (SMSStatus) Kind() Kind    { return KindSMSStatus }
func (DeviceStatus) Kind() Kind { return KindDeviceStatus }

func (IncomingSMS) envelope()  {}
func (SMSStatus) envelope()    {}
func (DeviceStatus) envelope() {}

// Time returns the device-reported receive time.
func (m IncomingSMS) Time() time.Time { return time.Unix(m.Timestamp, 0).UTC() }

// Time returns the device-reported status time.
func (s SMSStatus) Time() time.Time { return time.Unix(s.Timestamp, 0).UTC() }

// Time returns the device-reported report time.
func (s DeviceStatus) Time() time.Time { return time.Unix(s.Timestamp, 0).UTC() }

// NormalizePhone prefixes a bare number with '+'. Surrounding whitespace
// is trimmed.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" || strings.HasPrefix(phone, "+") {
		return phone
	}
	return "+" + phone
}

// Wire shapes with pointer fields so that missing required fields can be
// told apart from zero values.
type (
	incomingWire struct {
		Sender    *string `json:"sender"`
		Recipient *string `json:"recipient"`
		Content   *string `json:"content"`
		Timestamp *int64  `json:"timestamp"`
		IMEI      *string `json:"imei"`
	}
	statusWire struct {
		MessageID *string `json:"message_id"`
		Status    *string `json:"status"`
		Timestamp *int64  `json:"timestamp"`
		IMEI      *string `json:"imei"`
	}
	deviceWire struct {
		IMEI           *string `json:"imei"`
		Status         *string `json:"status"`
		SignalStrength *int    `json:"signal_strength"`
		BatteryLevel   *int    `json:"battery_level"`
		Timestamp      *int64  `json:"timestamp"`
	}
)

// Decode parses payload according to the kind of topic it arrived on.
//
// Errors wrap ErrUnknownTopic or ErrMalformedPayload.
func Decode(topic string, payload []byte) (Envelope, error) {
	switch KindForTopic(topic) {
	case KindIncomingSMS:
		var w incomingWire
		if err := unmarshal(payload, &w); err != nil {
			return nil, err
		}
		if err := requireFields(map[string]bool{
			"sender":    w.Sender != nil && *w.Sender != "",
			"content":   w.Content != nil,
			"timestamp": w.Timestamp != nil,
			"imei":      w.IMEI != nil && *w.IMEI != "",
		}); err != nil {
			return nil, err
		}
		msg := IncomingSMS{
			Sender:    NormalizePhone(*w.Sender),
			Content:   *w.Content,
			Timestamp: *w.Timestamp,
			IMEI:      *w.IMEI,
		}
		if w.Recipient != nil {
			msg.Recipient = *w.Recipient
		}
		return msg, nil

	case KindSMSStatus:
		var w statusWire
		if err := unmarshal(payload, &w); err != nil {
			return nil, err
		}
		if err := requireFields(map[string]bool{
			"message_id": w.MessageID != nil && *w.MessageID != "",
			"status":     w.Status != nil,
			"timestamp":  w.Timestamp != nil,
			"imei":       w.IMEI != nil,
		}); err != nil {
			return nil, err
		}
		return SMSStatus{
			MessageID: *w.MessageID,
			Status:    *w.Status,
			Timestamp: *w.Timestamp,
			IMEI:      *w.IMEI,
		}, nil

	case KindDeviceStatus:
		var w deviceWire
		if err := unmarshal(payload, &w); err != nil {
			return nil, err
		}
		if err := requireFields(map[string]bool{
			"imei":            w.IMEI != nil && *w.IMEI != "",
			"status":          w.Status != nil,
			"signal_strength": w.SignalStrength != nil,
			"battery_level":   w.BatteryLevel != nil,
			"timestamp":       w.Timestamp != nil,
		}); err != nil {
			return nil, err
		}
		return DeviceStatus{
			IMEI:           *w.IMEI,
			Status:         *w.Status,
			SignalStrength: *w.SignalStrength,
			BatteryLevel:   *w.BatteryLevel,
			Timestamp:      *w.Timestamp,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
}

func unmarshal(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return nil
}

// requireFields reports every missing field, sorted by name.
func requireFields(present map[string]bool) error {
	var missing []string
	for name, ok := range present {
		if !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("%w: missing %s", ErrMalformedPayload, strings.Join(missing, ", "))
}
