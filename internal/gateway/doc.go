// Package gateway is the device channel between cellular gateway devices
// and the bridge.
//
// Devices publish three kinds of JSON message which the channel decodes
// into typed envelopes:
//
//	sms/incoming   → IncomingSMS   {sender, recipient?, content, timestamp, imei}
//	sms/status     → SMSStatus     {message_id, status, timestamp, imei}
//	device/status  → DeviceStatus  {imei, status, signal_strength, battery_level, timestamp}
//
// Malformed payloads and unknown topics are logged and dropped. Each decoded
// message is handled on its own goroutine so a slow handler never stalls
// the broker's receive path.
//
// Outbound SMS are published to sms/outgoing/{imei} as
// {recipient, content, message_id}, where message_id is a fresh UUID used to
// correlate the later status report.
package gateway
