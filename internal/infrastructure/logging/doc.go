// Package logging is the slog setup shared by every AirRelay component.
//
// Each entry carries service and version. Components derive a child with
// Component so lines from the gateway, bridge and Telegram poller can be
// filtered apart:
//
//	log := logging.New(cfg.Logging, version)
//	bridgeLog := log.Component("bridge")
//	bridgeLog.Info("sms forwarded", "imei", imei, "group_id", groupID)
//
// Config keys:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// SMS bodies and phone numbers are logged only at debug. Tokens and
// passwords are never logged.
package logging
