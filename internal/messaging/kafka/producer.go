package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

// Producer публикует события галереи через sarama.SyncProducer.
// Синхронная отправка держит подтверждение брокера на пути запроса,
// поток событий магазина одного художника этого не замечает.
type Producer struct {
	sp     sarama.SyncProducer
	logger *log.Entry
}

var _ domain.EventPublisher = (*Producer)(nil)

// producerConfig настраивает доставку: подтверждение всех реплик плюс
// идемпотентность, чтобы ретраи не плодили дубликаты событий.
func producerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	// Идемпотентность в sarama работает только с одним запросом в полёте.
	config.Net.MaxOpenRequests = 1
	return config
}

// NewProducer подключается к брокерам и возвращает готовый издатель.
func NewProducer(brokers []string) (*Producer, error) {
	sp, err := sarama.NewSyncProducer(brokers, producerConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return wrapProducer(sp), nil
}

// wrapProducer оборачивает готовый SyncProducer. Вынесено отдельно,
// чтобы тесты могли подставить mock из sarama/mocks.
func wrapProducer(sp sarama.SyncProducer) *Producer {
	return &Producer{
		sp:     sp,
		logger: log.WithField("component", "kafka-producer"),
	}
}

// Publish сериализует payload и кладёт его в топик своего типа события.
func (p *Producer) Publish(eventType string, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", eventType, err)
	}

	topic := TopicFor(eventType)
	fields := log.Fields{
		"event_type": eventType,
		"topic":      topic,
		"key":        key,
	}

	partition, offset, err := p.sp.SendMessage(&sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("event publish failed")
		return fmt.Errorf("send event %s: %w", eventType, err)
	}

	fields["partition"] = partition
	fields["offset"] = offset
	p.logger.WithFields(fields).Debug("event published")
	return nil
}

// Close останавливает издатель и дожидается незавершённых отправок.
func (p *Producer) Close() error {
	if err := p.sp.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
