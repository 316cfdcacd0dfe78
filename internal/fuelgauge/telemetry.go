package fuelgauge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/TheCacophonyProject/tc2-fuel-gauge/gauge"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/redis/go-redis/v9"
)

const publishTimeout = 2 * time.Second

// sink receives every reading from the poll loop.
type sink interface {
	Publish(ctx context.Context, t time.Time, r gauge.Reading) error
	Close()
}

type timedReading struct {
	Time time.Time `json:"time"`
	gauge.Reading
}

type mqttSink struct {
	client mqtt.Client
	topic  string
}

func newMQTTSink(broker, topic string) (*mqttSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("tc2-fuel-gauge").
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return &mqttSink{client: client, topic: topic}, nil
}

func (s *mqttSink) Publish(ctx context.Context, t time.Time, r gauge.Reading) error {
	payload, err := json.Marshal(timedReading{Time: t, Reading: r})
	if err != nil {
		return err
	}
	token := s.client.Publish(s.topic, 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("mqtt publish timed out")
	}
	return token.Error()
}

func (s *mqttSink) Close() {
	s.client.Disconnect(250)
}

type redisSink struct {
	client *redis.Client
	key    string
}

func newRedisSink(addr, key string) *redisSink {
	return &redisSink{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    key,
	}
}

// redisFields flattens a reading into the hash stored under the sink key.
func redisFields(t time.Time, r gauge.Reading) map[string]interface{} {
	s := r.Sample
	return map[string]interface{}{
		"time":            t.Format(time.RFC3339),
		"capacity":        strconv.Itoa(r.Capacity),
		"soc":             strconv.Itoa(r.RawSOC),
		"voltage":         strconv.Itoa(s.Voltage),
		"current":         strconv.Itoa(s.Current),
		"ocv":             strconv.Itoa(s.OCV),
		"temperature":     strconv.Itoa(s.Temperature),
		"cycle-count":     strconv.Itoa(s.Cycle),
		"charging":        strconv.FormatBool(r.Tracker.Charging),
		"resistance-mode": r.ResistanceMode.String(),
		"v-empty":         r.Tracker.SWVEmpty.String(),
	}
}

func (s *redisSink) Publish(ctx context.Context, t time.Time, r gauge.Reading) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key, redisFields(t, r))
	pipe.Publish(ctx, s.key, "capacity")
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisSink) Close() {
	if err := s.client.Close(); err != nil {
		log.Warnf("Closing redis client: %v", err)
	}
}

func openSinks(conf ServiceConfig) []sink {
	var sinks []sink
	if conf.MQTTBroker != "" {
		s, err := newMQTTSink(conf.MQTTBroker, conf.MQTTTopic)
		if err != nil {
			log.Errorf("MQTT telemetry disabled: %v", err)
		} else {
			sinks = append(sinks, s)
		}
	}
	if conf.RedisAddr != "" {
		sinks = append(sinks, newRedisSink(conf.RedisAddr, conf.RedisKey))
	}
	return sinks
}
