package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/nandanugg/geotrack/module/core/domain"
)

const (
	qos            = 1
	publishTimeout = 5 * time.Second
	quiesceMillis  = 250
)

// client is the subset of paho.Client the backends use.
type client interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

var newClient = func(opts *paho.ClientOptions) client {
	return paho.NewClient(opts)
}

func LocationTopic(deviceID string) string {
	return fmt.Sprintf("/device/%s/location", deviceID)
}

func locationConfigTopic(deviceID string) string {
	return fmt.Sprintf("/device/%s/location/config", deviceID)
}

func PermissionTopic(deviceID string) string {
	return fmt.Sprintf("/device/%s/permission", deviceID)
}

func PermissionRequestTopic(deviceID string) string {
	return fmt.Sprintf("/device/%s/permission/request", deviceID)
}

func wait(token paho.Token) error {
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt: timed out after %s", publishTimeout)
	}
	return token.Error()
}

func publishJSON(c client, topic string, retained bool, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	if err := wait(c.Publish(topic, qos, retained, body)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// connectFailure maps a broker connect error to a failure code and whether
// the user can resolve it (for example by fixing credentials).
func connectFailure(err error) (code int, hasResolution bool) {
	var netErr net.Error
	switch {
	case errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword),
		errors.Is(err, packets.ErrorRefusedNotAuthorised):
		return domain.CodeSignInRequired, true
	case errors.Is(err, packets.ErrorRefusedIDRejected):
		return domain.CodeResolutionRequired, true
	case errors.Is(err, packets.ErrorRefusedServerUnavailable):
		return domain.CodeServiceUnavailable, false
	case errors.Is(err, packets.ErrorRefusedBadProtocolVersion):
		return domain.CodeServiceMissing, false
	case errors.Is(err, packets.ErrorNetworkError), errors.As(err, &netErr):
		return domain.CodeNetworkError, false
	}
	return domain.CodeInternalError, false
}
