// Package mqtt connects the gateway to an MQTT broker.
//
// The broker carries the gateway's outbound telemetry (resolved controller
// addresses, dispatch outcomes, online status) and, when enabled, inbound
// dispatch requests from other automation on the site.
//
//	roomgate ↔ Mosquitto ↔ building automation / dashboards
//
// The client reconnects with exponential backoff, restores subscriptions
// after a reconnect and registers a retained Last Will on
// roomgate/system/status so subscribers notice a crashed gateway.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        id, _ := mqtt.Topics{}.CommandDeviceID(topic)
//	        ...
//	    })
package mqtt
