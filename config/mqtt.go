package config

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// NewMQTTOptions returns the client options for the location backend. The
// backend owns the connection, so nothing is dialed here.
func NewMQTTOptions(cfg *Config) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID).
		SetConnectTimeout(10 * time.Second).
		SetKeepAlive(30 * time.Second)
}
