// Package mqtt provides MQTT client connectivity for the Hearth hub.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Hearth uses MQTT as its external integration surface: entity state is
// mirrored onto retained state topics, hub events are published under an
// event prefix, and services can be invoked by publishing to service
// topics. The broker decouples the hub from integration-specific
// implementations.
//
//	Hearth Hub ↔ MQTT Broker ↔ Integrations / Dashboards
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{Base: cfg.MQTT.BaseTopic}
//
//	// Subscribe to all service invocations
//	err = client.Subscribe(topics.AllServiceCalls(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a retained entity state
//	client.PublishRetained(topics.EntityState("light.living_room"), stateJSON)
package mqtt
