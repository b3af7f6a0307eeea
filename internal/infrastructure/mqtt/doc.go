// Package mqtt provides MQTT client connectivity for manipd.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// manipd publishes manipulator position changes and move outcomes to the
// broker and accepts move/stop commands over it. The broker decouples the
// rig UI and acquisition software from the serial link to the controller.
//
//	UI / acquisition ↔ MQTT Broker ↔ manipd ↔ serial ↔ PatchStar
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Publish a position update (retained so late subscribers see current state)
//	topic := mqtt.Topics{}.Position("patchstar-01")
//	client.PublishRetained(topic, payload)
//
//	// Accept stop commands
//	err = client.Subscribe(mqtt.Topics{}.StopCommand("patchstar-01"), 1,
//	    func(topic string, payload []byte) error {
//	        return man.Stop()
//	    })
package mqtt
