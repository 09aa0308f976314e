// Package mqttbridge connects the hub runtime to the MQTT broker.
//
// It translates in both directions:
//   - Entity state changes are published retained to <base>/state/<entity_id>
//     so new subscribers immediately see the current state. Removals clear
//     the retained message.
//   - Every bus event is published to <base>/event/<type> for external
//     consumers that want the raw event stream.
//   - Messages on <base>/service/<domain>/<service> invoke the named
//     service with the JSON payload as call data, attributed to a
//     remote origin under a fresh context.
//
// The bridge subscribes to the bus as task listeners because MQTT
// publishes can block on broker acknowledgment.
package mqttbridge
