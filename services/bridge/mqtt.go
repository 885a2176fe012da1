package bridge

import (
	"context"
	"errors"
	"time"

	"quizcam-go/errcode"
	"quizcam-go/services/config"

	"github.com/denisbrodbeck/machineid"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 5 * time.Second
)

var errNotConnected = errors.New("bridge: not connected")

type mqttUplink struct {
	c   mqtt.Client
	qos byte
}

// ClientID returns cfg.ClientID, or an ID derived from the host's machine
// ID so restarts reuse the broker session.
func ClientID(cfg config.BridgeConfig) string {
	if cfg.ClientID != "" {
		return cfg.ClientID
	}
	id, err := machineid.ProtectedID("quizcam")
	if err != nil || len(id) < 12 {
		return cfg.Prefix
	}
	return cfg.Prefix + "-" + id[:12]
}

// DialMQTT connects to cfg.Broker. Reconnection is left to the bridge's
// own supervisor so link state stays visible on the bus.
func DialMQTT(ctx context.Context, cfg config.BridgeConfig) (Uplink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(ClientID(cfg)).
		SetAutoReconnect(false).
		SetConnectTimeout(connectTimeout).
		SetCleanSession(true)

	c := mqtt.NewClient(opts)
	tok := c.Connect()
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(connectTimeout):
		return nil, &errcode.E{C: errcode.Timeout, Op: "bridge.dial", Msg: cfg.Broker}
	}
	if err := tok.Error(); err != nil {
		return nil, errcode.Wrap(errcode.IOError, "bridge.dial", err)
	}
	return &mqttUplink{c: c, qos: cfg.QoS}, nil
}

func (u *mqttUplink) Publish(topic string, payload []byte, retained bool) error {
	if !u.c.IsConnectionOpen() {
		return errNotConnected
	}
	tok := u.c.Publish(topic, u.qos, retained, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return &errcode.E{C: errcode.Timeout, Op: "bridge.publish", Msg: topic}
	}
	return tok.Error()
}

func (u *mqttUplink) Close() error {
	u.c.Disconnect(250)
	return nil
}
