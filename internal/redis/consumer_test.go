package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/koios/sensor-bridge/internal/config"
	"github.com/koios/sensor-bridge/pkg/models"
)

const testGroup = "sensor-bridge"

type stubHandler struct {
	requests []*models.ObserveRequest
	err      error
}

func (h *stubHandler) Handle(ctx context.Context, request *models.ObserveRequest) (*models.ObserveResult, error) {
	h.requests = append(h.requests, request)
	result := &models.ObserveResult{
		Type:     models.ObserveResultType,
		UUID:     request.UUID,
		SensorID: request.SensorID,
		AgentID:  request.AgentID,
		Shape:    models.Shape{2, 2, 1},
	}
	if h.err != nil {
		result.Shape = nil
	} else {
		result.Observation = "b2Jz"
	}
	return result, h.err
}

func setupClient(t *testing.T) (*miniredis.Miniredis, *redis.Client, *Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	client := NewClientFromRedis(rdb, config.RedisConfig{ConsumerGroup: testGroup}, zap.NewNop())
	return mr, rdb, client
}

func addRequest(t *testing.T, rdb *redis.Client, values map[string]interface{}) string {
	t.Helper()
	id, err := rdb.XAdd(context.Background(), &redis.XAddArgs{Stream: StreamKey, Values: values}).Result()
	if err != nil {
		t.Fatalf("XAdd failed: %v", err)
	}
	return id
}

func requestPayload(t *testing.T, req models.ObserveRequest) map[string]interface{} {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return map[string]interface{}{"payload": string(body)}
}

func subscribe(t *testing.T, rdb *redis.Client, agentID string) <-chan *redis.Message {
	t.Helper()
	ctx := context.Background()
	sub := rdb.Subscribe(ctx, ResultChannel(agentID))
	t.Cleanup(func() { sub.Close() })
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	return sub.Channel()
}

func pending(t *testing.T, rdb *redis.Client) int64 {
	t.Helper()
	p, err := rdb.XPending(context.Background(), StreamKey, testGroup).Result()
	if err != nil {
		t.Fatalf("XPending failed: %v", err)
	}
	return p.Count
}

func receive(t *testing.T, ch <-chan *redis.Message) models.ObserveResult {
	t.Helper()
	select {
	case msg := <-ch:
		var result models.ObserveResult
		if err := json.Unmarshal([]byte(msg.Payload), &result); err != nil {
			t.Fatalf("result is not JSON: %v", err)
		}
		return result
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
	}
	return models.ObserveResult{}
}

func TestNewClientFromRedis(t *testing.T) {
	mr, rdb, client := setupClient(t)

	if !mr.Exists(StreamKey) {
		t.Error("Expected stream to be created with the consumer group")
	}
	if client.ConsumerName() == "" {
		t.Error("Expected a generated consumer name")
	}
	if !client.IsHealthy() {
		t.Error("Expected healthy client")
	}

	// A second client joins the existing group
	other := NewClientFromRedis(rdb, config.RedisConfig{ConsumerGroup: testGroup, ConsumerName: "worker-2"}, zap.NewNop())
	if other.ConsumerName() != "worker-2" {
		t.Errorf("Expected worker-2, got %s", other.ConsumerName())
	}
	if err := other.initializeConsumerGroup(); err != nil {
		t.Errorf("Expected existing group to be accepted, got %v", err)
	}
}

func TestNewClient_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := NewClient(config.RedisConfig{Addr: addr, ConsumerGroup: testGroup}, zap.NewNop()); err == nil {
		t.Fatal("Expected connection error")
	}
}

func TestConsumerPublishesResult(t *testing.T) {
	_, rdb, client := setupClient(t)
	handler := &stubHandler{}
	consumer := NewConsumer(client, handler, zap.NewNop())
	consumer.block = 50 * time.Millisecond

	results := subscribe(t, rdb, "agent-1")
	addRequest(t, rdb, requestPayload(t, models.ObserveRequest{
		Type:     models.ObserveRequestType,
		UUID:     "u-1",
		SensorID: "front-camera",
		AgentID:  "agent-1",
	}))

	n, err := consumer.consumeOnce(10)
	if err != nil {
		t.Fatalf("consumeOnce failed: %v", err)
	}
	if n != 1 || len(handler.requests) != 1 {
		t.Fatalf("Expected 1 handled message, got %d (handler saw %d)", n, len(handler.requests))
	}

	result := receive(t, results)
	if result.UUID != "u-1" || result.Observation != "b2Jz" {
		t.Errorf("unexpected result: %+v", result)
	}
	if got := pending(t, rdb); got != 0 {
		t.Errorf("Expected message to be acknowledged, %d pending", got)
	}
}

func TestConsumerReclaimsUnacknowledged(t *testing.T) {
	_, rdb, client := setupClient(t)
	handler := &stubHandler{}
	consumer := NewConsumer(client, handler, zap.NewNop())
	consumer.minIdle = 0

	results := subscribe(t, rdb, "agent-1")
	addRequest(t, rdb, requestPayload(t, models.ObserveRequest{
		Type:     models.ObserveRequestType,
		UUID:     "u-stalled",
		SensorID: "front-camera",
		AgentID:  "agent-1",
	}))

	// delivered but never acknowledged
	if _, err := client.ReadFromStream(context.Background(), 10, 50*time.Millisecond); err != nil {
		t.Fatalf("ReadFromStream failed: %v", err)
	}
	if got := pending(t, rdb); got != 1 {
		t.Fatalf("Expected 1 pending message, got %d", got)
	}

	n, err := consumer.reclaim(10)
	if err != nil {
		t.Fatalf("reclaim failed: %v", err)
	}
	if n != 1 || len(handler.requests) != 1 {
		t.Fatalf("Expected 1 reclaimed message, got %d (handler saw %d)", n, len(handler.requests))
	}

	if result := receive(t, results); result.UUID != "u-stalled" {
		t.Errorf("unexpected result: %+v", result)
	}
	if got := pending(t, rdb); got != 0 {
		t.Errorf("Expected reclaimed message to be acknowledged, %d pending", got)
	}

	n, err = consumer.reclaim(10)
	if err != nil || n != 0 {
		t.Errorf("Expected nothing left to reclaim, got %d (%v)", n, err)
	}
}

func TestConsumerReclaimRespectsIdleTime(t *testing.T) {
	_, rdb, client := setupClient(t)
	handler := &stubHandler{}
	consumer := NewConsumer(client, handler, zap.NewNop())

	addRequest(t, rdb, requestPayload(t, models.ObserveRequest{
		Type:     models.ObserveRequestType,
		UUID:     "u-fresh",
		SensorID: "front-camera",
		AgentID:  "agent-1",
	}))
	if _, err := client.ReadFromStream(context.Background(), 10, 50*time.Millisecond); err != nil {
		t.Fatalf("ReadFromStream failed: %v", err)
	}

	n, err := consumer.reclaim(10)
	if err != nil {
		t.Fatalf("reclaim failed: %v", err)
	}
	if n != 0 || len(handler.requests) != 0 {
		t.Errorf("Expected recently delivered message to be left alone, reclaimed %d", n)
	}
	if got := pending(t, rdb); got != 1 {
		t.Errorf("Expected 1 pending message, got %d", got)
	}
}

func TestConsumerPublishesFailureEnvelope(t *testing.T) {
	_, rdb, client := setupClient(t)
	handler := &stubHandler{err: errors.New("sensor not found")}
	consumer := NewConsumer(client, handler, zap.NewNop())
	consumer.block = 50 * time.Millisecond

	results := subscribe(t, rdb, "agent-2")
	addRequest(t, rdb, requestPayload(t, models.ObserveRequest{
		Type:     models.ObserveRequestType,
		UUID:     "u-2",
		SensorID: "missing",
		AgentID:  "agent-2",
	}))

	if _, err := consumer.consumeOnce(10); err != nil {
		t.Fatalf("consumeOnce failed: %v", err)
	}

	result := receive(t, results)
	if result.UUID != "u-2" || result.Observation != "" {
		t.Errorf("Expected empty failure envelope, got %+v", result)
	}
	if got := pending(t, rdb); got != 0 {
		t.Errorf("Expected message to be acknowledged, %d pending", got)
	}
}

func TestConsumerAcksBadMessages(t *testing.T) {
	_, rdb, client := setupClient(t)
	handler := &stubHandler{}
	consumer := NewConsumer(client, handler, zap.NewNop())
	consumer.block = 50 * time.Millisecond

	addRequest(t, rdb, map[string]interface{}{"other": "field"})
	addRequest(t, rdb, map[string]interface{}{"payload": "{not json"})
	addRequest(t, rdb, requestPayload(t, models.ObserveRequest{Type: models.ObserveRequestType, SensorID: "front-camera"}))

	n, err := consumer.consumeOnce(10)
	if err != nil {
		t.Fatalf("consumeOnce failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("Expected 3 messages, got %d", n)
	}
	if len(handler.requests) != 1 {
		t.Errorf("Expected only the decodable request to reach the handler, got %d", len(handler.requests))
	}
	if got := pending(t, rdb); got != 0 {
		t.Errorf("Expected all messages to be acknowledged, %d pending", got)
	}
}

func TestConsumerEmptyStream(t *testing.T) {
	_, _, client := setupClient(t)
	consumer := NewConsumer(client, &stubHandler{}, zap.NewNop())
	consumer.block = 10 * time.Millisecond

	n, err := consumer.consumeOnce(10)
	if err != nil {
		t.Fatalf("consumeOnce failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected no messages, got %d", n)
	}
}

func TestConsumerStartStop(t *testing.T) {
	_, rdb, client := setupClient(t)
	consumer := NewConsumer(client, &stubHandler{}, zap.NewNop())
	consumer.block = 20 * time.Millisecond

	results := subscribe(t, rdb, "agent-3")

	done := make(chan error, 1)
	go func() { done <- consumer.Start() }()

	addRequest(t, rdb, requestPayload(t, models.ObserveRequest{
		Type:     models.ObserveRequestType,
		UUID:     "u-3",
		SensorID: "front-camera",
		AgentID:  "agent-3",
	}))
	if result := receive(t, results); result.UUID != "u-3" {
		t.Errorf("unexpected result: %+v", result)
	}

	consumer.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}
