package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	capability      = "android.permission.ACCESS_FINE_LOCATION"
	metersPerDegree = 111320.0
	walkAmplitude   = 120.0
	walkSteps       = 24
)

type locationMessage struct {
	DeviceID  string  `json:"device_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}

type configMessage struct {
	Enabled    bool  `json:"enabled"`
	IntervalMs int64 `json:"interval_ms"`
}

type permissionMessage struct {
	RequestID  string `json:"request_id,omitempty"`
	Capability string `json:"capability"`
	Granted    bool   `json:"granted"`
}

// device walks back and forth through a center point, publishes its fixes
// and answers location permission prompts.
type device struct {
	mu       sync.Mutex
	enabled  bool
	interval time.Duration
	grant    bool
}

func envFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

// offset moves a point east by meters.
func offset(lat, lon, meters float64) (float64, float64) {
	return lat, lon + meters/(metersPerDegree*math.Cos(lat*math.Pi/180))
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <device_id>\n", os.Args[0])
		os.Exit(1)
	}
	deviceID := os.Args[1]

	broker := "tcp://localhost:1883"
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		broker = v
	}
	centerLat := envFloat("CENTER_LAT", 36.987336)
	centerLon := envFloat("CENTER_LON", -86.451221)

	d := &device{interval: 5 * time.Second, grant: os.Getenv("DENY_PERMISSION") == ""}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("geotrack-device-" + deviceID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("mqtt connect: %v", token.Error())
	}
	defer client.Disconnect(250)

	configTopic := fmt.Sprintf("/device/%s/location/config", deviceID)
	requestTopic := fmt.Sprintf("/device/%s/permission/request", deviceID)
	permissionTopic := fmt.Sprintf("/device/%s/permission", deviceID)
	locationTopic := fmt.Sprintf("/device/%s/location", deviceID)

	client.Subscribe(configTopic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		var cfg configMessage
		if err := json.Unmarshal(msg.Payload(), &cfg); err != nil {
			log.Printf("invalid config: %v", err)
			return
		}
		d.mu.Lock()
		d.enabled = cfg.Enabled
		if cfg.IntervalMs > 0 {
			d.interval = time.Duration(cfg.IntervalMs) * time.Millisecond
		}
		d.mu.Unlock()
		log.Printf("location updates enabled=%t interval=%dms", cfg.Enabled, cfg.IntervalMs)
	}).Wait()

	client.Subscribe(requestTopic, 1, func(c mqtt.Client, msg mqtt.Message) {
		var req permissionMessage
		if err := json.Unmarshal(msg.Payload(), &req); err != nil {
			log.Printf("invalid permission request: %v", err)
			return
		}
		d.mu.Lock()
		granted := d.grant
		d.mu.Unlock()

		answer, _ := json.Marshal(permissionMessage{RequestID: req.RequestID, Capability: req.Capability, Granted: granted})
		c.Publish(permissionTopic, 1, true, answer).Wait()
		log.Printf("answered permission prompt %s: granted=%t", req.RequestID, granted)
	}).Wait()

	current, _ := json.Marshal(permissionMessage{Capability: capability, Granted: os.Getenv("PRE_GRANTED") != ""})
	client.Publish(permissionTopic, 1, true, current).Wait()

	log.Printf("device %s connected to %s, walking through (%f, %f)", deviceID, broker, centerLat, centerLon)

	for step := 0; ; step++ {
		d.mu.Lock()
		enabled, interval := d.enabled, d.interval
		d.mu.Unlock()

		time.Sleep(interval)
		if !enabled {
			continue
		}

		meters := walkAmplitude * math.Sin(2*math.Pi*float64(step%walkSteps)/walkSteps)
		lat, lon := offset(centerLat, centerLon, meters)
		payload, _ := json.Marshal(locationMessage{
			DeviceID:  deviceID,
			Latitude:  lat,
			Longitude: lon,
			Timestamp: time.Now().Unix(),
		})

		token := client.Publish(locationTopic, 1, false, payload)
		token.Wait()

		log.Printf("published to %s: %s", locationTopic, payload)
	}
}
