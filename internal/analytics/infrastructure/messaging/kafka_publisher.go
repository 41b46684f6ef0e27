// Package messaging 风险分析事件的 Kafka 发布实现。
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/wyfcoding/portfolioanalytics/internal/analytics/domain"
)

const (
	riskReportEventType = "risk.report.generated"
	stressTestEventType = "stress.test.completed"
)

// envelope 统一事件封装
type envelope struct {
	EventType  string    `json:"event_type"`
	OccurredOn time.Time `json:"occurred_on"`
	Payload    any       `json:"payload"`
}

// KafkaEventPublisher 实现 domain.EventPublisher。
// 以组合 ID 作为消息 Key, 保证同一组合的事件有序。
type KafkaEventPublisher struct {
	writer *kafkago.Writer
}

// NewKafkaEventPublisher 创建事件发布器。
func NewKafkaEventPublisher(brokers []string, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireAll,
			MaxAttempts:  5,
		},
	}
}

// PublishRiskReportGenerated 发布风险报告生成事件。
func (p *KafkaEventPublisher) PublishRiskReportGenerated(ctx context.Context, event domain.RiskReportGeneratedEvent) error {
	return p.publish(ctx, riskReportEventType, event.PortfolioID, event.OccurredOn, event)
}

// PublishStressTestCompleted 发布压力测试完成事件。
func (p *KafkaEventPublisher) PublishStressTestCompleted(ctx context.Context, event domain.StressTestCompletedEvent) error {
	return p.publish(ctx, stressTestEventType, event.PortfolioID, event.OccurredOn, event)
}

func (p *KafkaEventPublisher) publish(ctx context.Context, eventType, key string, occurredOn time.Time, payload any) error {
	value, err := json.Marshal(envelope{
		EventType:  eventType,
		OccurredOn: occurredOn,
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	return p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(key),
		Value: value,
		Time:  occurredOn,
	})
}

// Close 关闭底层 writer。
func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}
