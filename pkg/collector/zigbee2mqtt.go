package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/zigsight/zigsight/pkg"
	"github.com/zigsight/zigsight/pkg/config"
	"github.com/zigsight/zigsight/pkg/logx"
)

// Zigbee2MQTT ingests device telemetry from a zigbee2mqtt bridge over MQTT.
// It subscribes to the bridge device list and to every device topic under the
// configured prefix, normalizing payloads into metric snapshots.
type Zigbee2MQTT struct {
	cfg    config.MQTTConfig
	logger *logx.Logger
	sink   Sink

	client MQTT.Client

	mu        sync.RWMutex
	connected bool
	nameToID  map[string]string
}

// An observation gap longer than this counts as a reconnect.
const reconnectGap = 5 * time.Minute

// NewZigbee2MQTT creates the zigbee2mqtt collector.
func NewZigbee2MQTT(cfg config.MQTTConfig, sink Sink, logger *logx.Logger) *Zigbee2MQTT {
	return &Zigbee2MQTT{
		cfg:      cfg,
		logger:   logger,
		sink:     sink,
		nameToID: make(map[string]string),
	}
}

// Start connects to the broker and subscribes. The paho client reconnects on
// its own after transient broker loss; Start only fails on the initial
// connect.
func (z *Zigbee2MQTT) Start(ctx context.Context) error {
	opts := MQTT.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", z.cfg.Broker, z.cfg.Port))
	opts.SetClientID(z.cfg.ClientID)

	if z.cfg.Username != "" {
		opts.SetUsername(z.cfg.Username)
		opts.SetPassword(z.cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	opts.SetOnConnectHandler(z.onConnect)
	opts.SetConnectionLostHandler(z.onConnectionLost)

	z.client = MQTT.NewClient(opts)

	if token := z.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	z.logger.Info("Collector connected",
		"broker", z.cfg.Broker,
		"port", z.cfg.Port,
		"topic_prefix", z.cfg.TopicPrefix,
	)

	go func() {
		<-ctx.Done()
		z.Stop()
	}()

	return nil
}

// Stop disconnects from the broker.
func (z *Zigbee2MQTT) Stop() {
	z.mu.Lock()
	connected := z.connected
	z.connected = false
	z.mu.Unlock()

	if z.client != nil && connected {
		z.client.Disconnect(250)
		z.logger.Info("Collector disconnected")
	}
}

// Name implements Collector.
func (z *Zigbee2MQTT) Name() string { return "zigbee2mqtt" }

// Healthy implements Collector.
func (z *Zigbee2MQTT) Healthy() bool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.connected && z.client != nil && z.client.IsConnected()
}

// onConnect resubscribes on every (re)connect; paho does not restore
// subscriptions across reconnects with clean sessions.
func (z *Zigbee2MQTT) onConnect(client MQTT.Client) {
	z.mu.Lock()
	z.connected = true
	z.mu.Unlock()

	subs := map[string]MQTT.MessageHandler{
		z.cfg.TopicPrefix + "/bridge/devices": z.handleBridgeDevices,
		z.cfg.TopicPrefix + "/bridge/state":   z.handleBridgeState,
		z.cfg.TopicPrefix + "/+":              z.handleDeviceMessage,
	}
	for topic, handler := range subs {
		if token := client.Subscribe(topic, byte(z.cfg.QoS), handler); token.Wait() && token.Error() != nil {
			z.logger.Error("Subscription failed", "topic", topic, "error", token.Error())
		}
	}

	z.logger.Info("Collector subscriptions established", "topic_prefix", z.cfg.TopicPrefix)
}

func (z *Zigbee2MQTT) onConnectionLost(client MQTT.Client, err error) {
	z.mu.Lock()
	z.connected = false
	z.mu.Unlock()

	z.logger.Warn("MQTT connection lost", "error", err)
}

// handleBridgeDevices ingests the retained bridge device list, registering
// identity for every device and the friendly-name lookup for telemetry
// topics.
func (z *Zigbee2MQTT) handleBridgeDevices(_ MQTT.Client, msg MQTT.Message) {
	infos, err := normalizeDeviceList(msg.Payload(), time.Now())
	if err != nil {
		z.logger.Warn("Ignoring malformed device list", "error", err)
		return
	}

	z.mu.Lock()
	for _, info := range infos {
		if info.FriendlyName != "" {
			z.nameToID[info.FriendlyName] = info.DeviceID
		}
	}
	z.mu.Unlock()

	for _, info := range infos {
		z.sink.SetDeviceInfo(info)
	}

	z.logger.Debug("Device list updated", "devices", len(infos))
}

// handleBridgeState records bridge availability transitions as events.
func (z *Zigbee2MQTT) handleBridgeState(_ MQTT.Client, msg MQTT.Message) {
	state := strings.TrimSpace(string(msg.Payload()))

	// Newer bridges publish {"state": "online"} instead of a bare string.
	var wrapped struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(msg.Payload(), &wrapped); err == nil && wrapped.State != "" {
		state = wrapped.State
	}

	z.sink.AddEvent(pkg.Event{
		Timestamp: time.Now(),
		Type:      pkg.EventCollectorStateSet,
		Data:      map[string]interface{}{"collector": z.Name(), "state": state},
	})

	z.logger.Info("Bridge state changed", "state", state)
}

// handleDeviceMessage ingests one device telemetry payload. The single-level
// wildcard keeps bridge subtopics out, but availability and set/get echoes
// still arrive and are filtered here.
func (z *Zigbee2MQTT) handleDeviceMessage(_ MQTT.Client, msg MQTT.Message) {
	suffix := strings.TrimPrefix(msg.Topic(), z.cfg.TopicPrefix+"/")
	if suffix == "" || suffix == "bridge" || strings.Contains(suffix, "/") {
		return
	}
	if len(msg.Payload()) == 0 || msg.Payload()[0] != '{' {
		return
	}

	now := time.Now()
	snap, err := normalizeSnapshot(msg.Payload(), now)
	if err != nil {
		z.logger.Debug("Ignoring malformed device payload", "topic", msg.Topic(), "error", err)
		return
	}

	deviceID := z.resolveDeviceID(suffix)

	if prev, ok := z.sink.Latest(deviceID); ok && snap.LastSeen.Sub(prev.LastSeen) > reconnectGap {
		z.sink.AddEvent(pkg.Event{
			Timestamp: now,
			Type:      pkg.EventDeviceReconnect,
			DeviceID:  deviceID,
			Data: map[string]interface{}{
				"gap_seconds": snap.LastSeen.Sub(prev.LastSeen).Seconds(),
			},
		})
	}

	z.sink.Append(deviceID, snap)
}

// resolveDeviceID maps a telemetry topic's friendly name to the device's
// IEEE address. Before the bridge list arrives the friendly name itself is
// used, so early telemetry is not dropped.
func (z *Zigbee2MQTT) resolveDeviceID(friendlyName string) string {
	z.mu.RLock()
	defer z.mu.RUnlock()

	if id, ok := z.nameToID[friendlyName]; ok {
		return id
	}
	return friendlyName
}
