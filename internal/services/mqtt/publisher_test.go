package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmascan/internal/logger"
	"pharmascan/internal/models"
	"pharmascan/internal/services/barcode"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completed(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func pending() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	connectToken paho.Token
	publishToken paho.Token
	connected    bool
	published    []published
	disconnected bool
}

func (c *fakeClient) Connect() paho.Token {
	c.connected = c.connectToken.Error() == nil
	return c.connectToken
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	c.published = append(c.published, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return c.publishToken
}

func (c *fakeClient) Disconnect(uint) {
	c.disconnected = true
	c.connected = false
}

type countingRecorder struct{ ok, failed int }

func (r *countingRecorder) RecordPublish(err error) {
	if err != nil {
		r.failed++
		return
	}
	r.ok++
}

func newTestPublisher(client *fakeClient, rec Recorder) *Publisher {
	p := NewPublisher(Config{Broker: "tcp://localhost:1883", Topic: "pharmascan/detections", ClientID: "test"}, rec, logger.Discard())
	p.newClient = func(*paho.ClientOptions) brokerClient { return client }
	return p
}

func record() models.DetectionRecord {
	return models.DetectionRecord{
		ID:               "rec-1",
		SessionID:        "session-1",
		Payload:          "8470001234568",
		Symbology:        barcode.EAN13,
		Timestamp:        time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
		IsValid:          true,
		IsPharmaceutical: true,
	}
}

func TestPublisher_PublishesRecord(t *testing.T) {
	client := &fakeClient{connectToken: completed(nil), publishToken: completed(nil)}
	rec := &countingRecorder{}
	p := newTestPublisher(client, rec)

	require.NoError(t, p.Connect(context.Background()))
	require.True(t, p.IsConnected())
	require.NoError(t, p.Publish(context.Background(), record()))

	require.Len(t, client.published, 1)
	msg := client.published[0]
	assert.Equal(t, "pharmascan/detections/EAN13", msg.topic)
	assert.Equal(t, byte(1), msg.qos)

	var body Message
	require.NoError(t, json.Unmarshal(msg.payload, &body))
	assert.Equal(t, "8470001234568", body.Code)
	assert.True(t, body.Pharmaceutical)
	assert.Equal(t, 1, rec.ok)

	p.Disconnect()
	assert.True(t, client.disconnected)
	assert.False(t, p.IsConnected())
}

func TestPublisher_NotConnected(t *testing.T) {
	rec := &countingRecorder{}
	p := newTestPublisher(&fakeClient{}, rec)

	err := p.Publish(context.Background(), record())

	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 1, rec.failed)
}

func TestPublisher_ConnectError(t *testing.T) {
	p := newTestPublisher(&fakeClient{connectToken: completed(errors.New("refused"))}, nil)

	err := p.Connect(context.Background())

	assert.ErrorContains(t, err, "refused")
	assert.False(t, p.IsConnected())
}

func TestPublisher_PublishHonoursContext(t *testing.T) {
	client := &fakeClient{connectToken: completed(nil), publishToken: pending()}
	p := newTestPublisher(client, nil)
	require.NoError(t, p.Connect(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Publish(ctx, record()), context.Canceled)
}

func TestConfig_Enabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{Broker: "tcp://broker:1883"}.Enabled())
}
