// Package mqttbridge exposes Bluetray devices over MQTT.
//
// Each device's state is published retained on
// {prefix}/device/{address}/state. Messages such as {"action":"toggle"}
// on {prefix}/device/{address}/command are forwarded to the connection
// coordinator, which applies the usual single-flight rules; rejected
// commands are logged and otherwise ignored.
package mqttbridge
