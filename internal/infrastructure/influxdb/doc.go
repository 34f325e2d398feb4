// Package influxdb records bridge telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and a health check.
//
// # Measurements
//
//	device_status  tags: imei, status             fields: signal_strength, battery_level, online, status_detail
//	sms_events     tags: imei, direction, result  fields: count, result_detail
//
// Tag values are bounded. A status or result outside the known set is
// tagged "other" and the raw value is kept in the *_detail field.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteSMSEvent(imei, influxdb.DirectionInbound, "forwarded")
//
// # Error Handling
//
// Writes never block the caller. Batch failures are delivered to the
// callback registered with SetOnError, wrapped in ErrWriteFailed.
package influxdb
