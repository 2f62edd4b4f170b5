// Package mqtt provides MQTT client connectivity for monomed.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// monomed uses MQTT to expose discovered devices and their input events
// to other services, and to accept LED commands from them. The broker
// decouples consumers from the OSC wire protocol entirely.
//
//	serialosc daemon ↔ monomed ↔ MQTT Broker ↔ consumers
//
// # Security Considerations
//
//   - TLS is required for non-local deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all device commands
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a key press
//	topic := mqtt.Topics{}.DeviceInput("m0000226", "key")
//	client.Publish(topic, []byte(`{"x":3,"y":2,"state":1}`), 1, false)
package mqtt
