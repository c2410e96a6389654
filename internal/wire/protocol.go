// Package wire implements the command & telemetry wire protocol: the
// routing-key grammar and the RELAY/FAN/temperature payload codecs,
// grounded on the routing-key parsing and message-type switch idiom used
// by the reference MQTT device manager this pack retrieved.
package wire

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sentrygrid/twinctl/internal/model"
)

// Handler names the second routing-key segment.
type Handler string

const (
	HandlerDigitalOutput Handler = "digital_output"
	HandlerFan           Handler = "fan"
	HandlerDS18B20       Handler = "ds18b20"
	HandlerThermocouple  Handler = "thermocouple"
)

// Suffix names the final routing-key segment.
type Suffix string

const (
	SuffixSet   Suffix = "set"
	SuffixState Suffix = "state"
)

// RoutingKey is the parsed form of ".{controllerId}.{handler}.{componentId}.{suffix}".
type RoutingKey struct {
	ControllerId string
	Handler      Handler
	ComponentId  string
	Suffix       Suffix
}

// ParseRoutingKey parses the leading-dot grammar, rejecting anything that
// doesn't have exactly four dot-separated segments after the leading dot.
func ParseRoutingKey(key string) (RoutingKey, error) {
	if !strings.HasPrefix(key, ".") {
		return RoutingKey{}, fmt.Errorf("wire: routing key %q must start with '.'", key)
	}
	parts := strings.Split(strings.TrimPrefix(key, "."), ".")
	if len(parts) != 4 {
		return RoutingKey{}, fmt.Errorf("wire: routing key %q must have 4 segments, got %d", key, len(parts))
	}
	return RoutingKey{
		ControllerId: parts[0],
		Handler:      Handler(parts[1]),
		ComponentId:  parts[2],
		Suffix:       Suffix(parts[3]),
	}, nil
}

// Build renders a RoutingKey back to its wire form.
func (k RoutingKey) Build() string {
	return fmt.Sprintf(".%s.%s.%s.%s", k.ControllerId, k.Handler, k.ComponentId, k.Suffix)
}

// CommandRoutingKey returns the outbound ".{ctrl}.{handler}.{comp}.set" key
// for a device command.
func CommandRoutingKey(id model.DeviceId, t model.DeviceType) (RoutingKey, error) {
	h, err := handlerFor(t)
	if err != nil {
		return RoutingKey{}, err
	}
	return RoutingKey{ControllerId: id.ControllerId, Handler: h, ComponentId: id.ComponentId, Suffix: SuffixSet}, nil
}

func handlerFor(t model.DeviceType) (Handler, error) {
	switch t {
	case model.DeviceTypeRelay:
		return HandlerDigitalOutput, nil
	case model.DeviceTypeFan:
		return HandlerFan, nil
	default:
		return "", fmt.Errorf("wire: device type %s has no outbound handler", t)
	}
}

type relayPayload struct {
	State string `json:"state"`
}

// EncodeCommand renders a DeviceCommand's payload bytes for its routing
// key: RELAY becomes JSON {"state":"0"|"1"}, FAN becomes an ASCII integer.
func EncodeCommand(cmd model.DeviceCommand) (RoutingKey, []byte, error) {
	key, err := CommandRoutingKey(cmd.Id, cmd.Type)
	if err != nil {
		return RoutingKey{}, nil, err
	}
	switch cmd.Type {
	case model.DeviceTypeRelay:
		on, ok := cmd.RawValue.(bool)
		if !ok {
			return RoutingKey{}, nil, fmt.Errorf("wire: RELAY command carries non-bool raw value %T", cmd.RawValue)
		}
		state := "0"
		if on {
			state = "1"
		}
		b, err := json.Marshal(relayPayload{State: state})
		return key, b, err
	case model.DeviceTypeFan:
		speed, ok := cmd.RawValue.(int)
		if !ok {
			return RoutingKey{}, nil, fmt.Errorf("wire: FAN command carries non-int raw value %T", cmd.RawValue)
		}
		if speed < 0 || speed > 4 {
			return RoutingKey{}, nil, fmt.Errorf("wire: FAN speed %d outside domain [0,4]", speed)
		}
		return key, []byte(strconv.Itoa(speed)), nil
	default:
		return RoutingKey{}, nil, fmt.Errorf("wire: unsupported command type %s", cmd.Type)
	}
}

// ToRawValue unwraps a tagged DeviceValue into its wire-native Go shape:
// Relay -> bool, Fan -> int.
func ToRawValue(v model.DeviceValue) (interface{}, error) {
	if on, ok := v.Relay(); ok {
		return on, nil
	}
	if speed, ok := v.Fan(); ok {
		return speed, nil
	}
	return nil, fmt.Errorf("wire: device value has no raw representation")
}

// ParseDigitalOutputFeedback parses inbound RELAY actuator feedback:
// case-insensitive "0"/"1"/"LOW"/"HIGH" after trimming whitespace; any
// other token is unknown and should be dropped by the caller.
func ParseDigitalOutputFeedback(payload string) (bool, bool) {
	switch strings.ToUpper(strings.TrimSpace(payload)) {
	case "1", "HIGH":
		return true, true
	case "0", "LOW":
		return false, true
	default:
		return false, false
	}
}

// ParseFanFeedback parses inbound FAN actuator feedback: an integer in
// 0..4; anything else (including out-of-range integers) is unknown.
func ParseFanFeedback(payload string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil || n < 0 || n > 4 {
		return 0, false
	}
	return n, true
}

// TemperatureReading is the decoded payload of an inbound temperature
// feedback message; IsError is set with Value NaN on parse failure rather
// than the caller dropping the message outright.
type TemperatureReading struct {
	Value   float64
	IsError bool
}

// ParseTemperatureFeedback parses inbound ds18b20/thermocouple feedback:
// a decimal number, possibly negative.
func ParseTemperatureFeedback(payload string) TemperatureReading {
	v, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
	if err != nil {
		return TemperatureReading{Value: math.NaN(), IsError: true}
	}
	return TemperatureReading{Value: v}
}
