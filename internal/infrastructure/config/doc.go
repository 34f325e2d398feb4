// Package config loads the AirRelay configuration.
//
// Load starts from built-in defaults, merges the YAML file on top, then
// applies AIRRELAY_* environment variables and validates the result. A
// container with no file mounted sets AIRRELAY_CONFIG_OPTIONAL and runs on
// defaults plus environment.
//
// The Telegram bot token, broker and Redis passwords, the API token and the
// InfluxDB token belong in the environment. Validate refuses to start
// without a bot token or, for the redis backend, a Redis URL.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	addr := fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port)
package config
