package influxdb

import (
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	measurementDeviceStatus = "device_status"
	measurementSMSEvents    = "sms_events"
)

// SMS event directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
	DirectionStatus   = "status"
)

// resultOther is the tag for any result outside knownResults.
const resultOther = "other"

// knownResults bounds the result tag. Device firmware reports free-form
// statuses; anything else is tagged "other" and kept as a field.
var knownResults = map[string]bool{
	"forwarded": true,
	"queued":    true,
	"sent":      true,
	"delivered": true,
	"failed":    true,
	"expired":   true,
	"rejected":  true,
	"unknown":   true,
}

// deviceStates bounds the status tag of device_status.
var deviceStates = map[string]bool{
	"online":  true,
	"offline": true,
}

// classify maps value onto allowed, returning the tag and whether the raw
// value must also be kept as a field.
func classify(value string, allowed map[string]bool) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	if allowed[v] {
		return v, v != value
	}
	return resultOther, true
}

// WriteDeviceStatus records a device health report.
//
//	client.WriteDeviceStatus("860000000000001", "online", 71, 93, reportedAt)
func (c *Client) WriteDeviceStatus(imei, status string, signalStrength, batteryLevel int, at time.Time) {
	state, keepRaw := classify(status, deviceStates)
	fields := map[string]any{
		"signal_strength": signalStrength,
		"battery_level":   batteryLevel,
		"online":          state == "online",
	}
	if keepRaw {
		fields["status_detail"] = status
	}

	c.write(write.NewPoint(
		measurementDeviceStatus,
		map[string]string{"imei": imei, "status": state},
		fields,
		at,
	))
}

// WriteSMSEvent counts one SMS moving through the bridge. direction is one
// of the Direction constants.
func (c *Client) WriteSMSEvent(imei, direction, result string) {
	tag, keepRaw := classify(result, knownResults)
	fields := map[string]any{"count": 1}
	if keepRaw {
		fields["result_detail"] = result
	}

	c.write(write.NewPoint(
		measurementSMSEvents,
		map[string]string{"imei": imei, "direction": direction, "result": tag},
		fields,
		time.Now(),
	))
}
