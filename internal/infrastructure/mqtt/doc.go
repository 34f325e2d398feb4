// Package mqtt provides the broker connection used to talk to cellular
// gateway devices.
//
// This package manages:
//   - A single logical connection with an explicit state machine
//   - Re-subscription of every registered filter on each connection
//   - Fixed-interval reconnection after a connection loss
//   - Retained bridge presence with a Last Will for unexpected drops
//
// # Connection States
//
//	Disconnected ─Connect─▶ Connecting ─subscribed─▶ Connected
//	Connected ─lost─▶ Reconnecting ─tick─▶ Connecting
//	any ─Close─▶ Disconnected
//
// The client reports Connected only after the broker has acknowledged every
// registered subscription. A failed first Connect is returned to the caller;
// the background loop only runs after a connection that once succeeded.
//
// # Security Considerations
//
//   - TLS (cfg.Broker.TLS) enforces TLS 1.2 or newer
//   - Anonymous access is only for local development
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT)
//	client.SetLogger(log)
//	_ = client.Subscribe(ctx, mqtt.TopicSMSIncoming, 1, handleIncoming)
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic, _ := mqtt.Topics{}.SMSOutgoing(imei)
//	err := client.Publish(ctx, topic, body, 1, false)
package mqtt
