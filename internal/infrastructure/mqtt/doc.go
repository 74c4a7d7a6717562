// Package mqtt is Bluetray's broker session.
//
// A Client publishes retained device state, routes device command topics
// to handlers, and keeps bluetray/system/status at "online" while the tray
// runs. The broker's Last Will flips it to "offline" if the process dies.
// paho handles reconnect backoff; routes are replayed on every new
// session.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	client.PublishRetained(topics.DeviceState("AA:BB:CC:DD:EE:FF"), payload)
//	client.Subscribe(topics.AllDeviceCommands(), 1, handleCommand)
//
// Use mqtt.broker.tls for a broker outside the machine. Credentials can
// come from BLUETRAY_MQTT_USERNAME and BLUETRAY_MQTT_PASSWORD.
package mqtt
