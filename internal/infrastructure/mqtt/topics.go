package mqtt

import (
	"fmt"
	"strings"
)

// Topic names shared with the cellular gateway firmware.
const (
	// TopicSMSIncoming carries SMS received by a device.
	TopicSMSIncoming = "sms/incoming"

	// TopicSMSStatus carries delivery reports for SMS the bridge queued.
	TopicSMSStatus = "sms/status"

	// TopicDeviceStatus carries periodic device health reports.
	TopicDeviceStatus = "device/status"

	// TopicPrefixSMSOutgoing is the base of the per-device outbound topic.
	TopicPrefixSMSOutgoing = "sms/outgoing"

	// TopicBridgeStatus is the retained presence topic of the bridge itself.
	TopicBridgeStatus = "airrelay/bridge/status"
)

// Topics provides builders for AirRelay MQTT topics.
//
//	topic, err := mqtt.Topics{}.SMSOutgoing("860000000000001")
//	// Returns: "sms/outgoing/860000000000001"
type Topics struct{}

// SMSOutgoing returns the topic a device listens on for SMS to send.
// The imei must be a single, wildcard-free topic level.
func (Topics) SMSOutgoing(imei string) (string, error) {
	if err := ValidateTopicLevel(imei); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s", TopicPrefixSMSOutgoing, imei), nil
}

// Inbound returns the topics the bridge subscribes to.
func (Topics) Inbound() []string {
	return []string{TopicSMSIncoming, TopicSMSStatus, TopicDeviceStatus}
}

// ValidateTopicLevel rejects values that cannot be used as one level of a
// publish topic: empty strings and strings containing '/', '+', '#' or NUL.
func ValidateTopicLevel(level string) error {
	if level == "" {
		return fmt.Errorf("%w: empty level", ErrInvalidTopic)
	}
	if strings.ContainsAny(level, "/+#\x00") {
		return fmt.Errorf("%w: level %q contains a reserved character", ErrInvalidTopic, level)
	}
	return nil
}
