package mqtt

import (
	"errors"
	"testing"
	"time"

	"hms-vitals/common/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func TestClientOptions(t *testing.T) {
	c := &Client{
		config: &config.MQTTConfig{
			Broker:   "tcp://broker:1883",
			ClientID: "hms-vitals-1",
			Username: "svc",
			Password: "secret",
		},
		logger: zap.NewNop(),
		subs:   make(map[string]subscription),
	}

	opts := c.clientOptions()
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "broker:1883", opts.Servers[0].Host)
	assert.Equal(t, "hms-vitals-1", opts.ClientID)
	assert.Equal(t, "svc", opts.Username)
	assert.True(t, opts.CleanSession)
	assert.True(t, opts.AutoReconnect)
	// 处理函数不能阻塞 paho 路由
	assert.False(t, opts.Order)
	assert.Equal(t, 10*time.Second, opts.ConnectTimeout)
	assert.Equal(t, time.Minute, opts.MaxReconnectInterval)
	assert.NotNil(t, opts.OnConnect)
}

func TestCallback_LogsHandlerError(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	c := &Client{logger: zap.New(core), subs: make(map[string]subscription)}

	var got []string
	cb := c.callback(func(topic string, payload []byte) error {
		got = append(got, topic+"="+string(payload))
		if string(payload) == "bad" {
			return errors.New("boom")
		}
		return nil
	})

	cb(nil, &fakeMessage{topic: "hms/vitals/recorded", payload: []byte("ok")})
	cb(nil, &fakeMessage{topic: "hms/vitals/recorded", payload: []byte("bad")})

	assert.Equal(t, []string{"hms/vitals/recorded=ok", "hms/vitals/recorded=bad"}, got)
	entries := logs.FilterMessage("Error handling MQTT message").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "hms/vitals/recorded", entries[0].ContextMap()["topic"])
}
