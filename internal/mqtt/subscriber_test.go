package mqtt

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"firewatch/internal/errors"
	"firewatch/internal/models"
	"firewatch/internal/services"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockIngestor struct {
	mock.Mock
}

func (m *MockIngestor) Predict(ctx context.Context, raw models.RawInput) (services.IngestResult, error) {
	args := m.Called(ctx, raw)
	return args.Get(0).(services.IngestResult), args.Error(1)
}

func (m *MockIngestor) Save(ctx context.Context, raw models.RawInput, status string) (services.IngestResult, error) {
	args := m.Called(ctx, raw, status)
	return args.Get(0).(services.IngestResult), args.Error(1)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeToken struct {
	err error
}

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

// fakeClient records subscriptions; other mqtt.Client methods are not used
type fakeClient struct {
	mqtt.Client
	topic   string
	qos     byte
	handler mqtt.MessageHandler
	err     error
}

func (c *fakeClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) mqtt.Token {
	c.topic, c.qos, c.handler = topic, qos, handler
	return fakeToken{err: c.err}
}

func isRaw(temp, hum, gas, flame string) interface{} {
	return mock.MatchedBy(func(raw models.RawInput) bool {
		return raw.Temp != nil && *raw.Temp == temp &&
			raw.Hum != nil && *raw.Hum == hum &&
			raw.Gas != nil && *raw.Gas == gas &&
			raw.Flame != nil && *raw.Flame == flame
	})
}

func TestSubscribeRoutesToPredict(t *testing.T) {
	ingest := new(MockIngestor)
	ingest.On("Predict", mock.Anything, isRaw("33", "41", "180", "0")).
		Return(services.IngestResult{Reading: models.Reading{Status: "AMAN"}}, nil).Once()

	client := &fakeClient{}
	sub := NewSubscriber(client, ingest, SubscriberConfig{}, zerolog.Nop())
	require.NoError(t, sub.Subscribe())

	assert.Equal(t, "fire/+/reading", client.topic)
	require.NotNil(t, client.handler)

	client.handler(client, fakeMessage{
		topic:   "fire/esp32-kitchen/reading",
		payload: []byte(`{"temp":33,"hum":41,"gas":180,"flame":0}`),
	})

	ingest.AssertExpectations(t)
	ingest.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
}

func TestStatusPayloadRoutesToSave(t *testing.T) {
	ingest := new(MockIngestor)
	ingest.On("Save", mock.Anything, isRaw("70", "10", "900", "1"), "fire").
		Return(services.IngestResult{}, nil).Once()

	sub := NewSubscriber(&fakeClient{}, ingest, DefaultSubscriberConfig(), zerolog.Nop())
	sub.handleReading(nil, fakeMessage{
		topic:   "fire/garage/reading",
		payload: []byte(`{"temp":"70","hum":"10","gas":"900","flame":"1","status":"fire"}`),
	})

	ingest.AssertExpectations(t)
	ingest.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything)
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	ingest := new(MockIngestor)
	sub := NewSubscriber(&fakeClient{}, ingest, DefaultSubscriberConfig(), zerolog.Nop())

	sub.handleReading(nil, fakeMessage{topic: "fire/x/reading", payload: []byte(`not json`)})

	ingest.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything)
	ingest.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
}

func TestRejectedReadingDoesNotPanic(t *testing.T) {
	ingest := new(MockIngestor)
	ingest.On("Predict", mock.Anything, mock.Anything).
		Return(services.IngestResult{}, errors.New().WithData(errors.ErrInvalidInput, "missing field temp"))

	sub := NewSubscriber(&fakeClient{}, ingest, DefaultSubscriberConfig(), zerolog.Nop())

	assert.NotPanics(t, func() {
		sub.handleReading(nil, fakeMessage{topic: "fire/x/reading", payload: []byte(`{}`)})
	})
	ingest.AssertExpectations(t)
}

func TestSubscribeFailure(t *testing.T) {
	client := &fakeClient{err: stderrors.New("not authorized")}
	sub := NewSubscriber(client, new(MockIngestor), DefaultSubscriberConfig(), zerolog.Nop())

	err := sub.Subscribe()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrUnavailable))
}

func TestExtractDeviceID(t *testing.T) {
	assert.Equal(t, "esp32-kitchen", extractDeviceID("fire/esp32-kitchen/reading"))
	assert.Equal(t, "", extractDeviceID("reading"))
}
