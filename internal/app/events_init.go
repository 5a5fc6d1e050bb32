package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/aurabyshenoi/gallery/internal/domain"
	"github.com/aurabyshenoi/gallery/internal/messaging/kafka"
)

// buildEvents подбирает издатель событий по списку брокеров. Без брокеров
// и при недоступной Kafka витрина работает дальше на заглушке: продажа
// картин важнее шины событий. Второй результат не nil только для живого
// подключения, его закрывает Dependencies.Close.
func buildEvents(brokers string, logger *log.Entry) (domain.EventPublisher, *kafka.Producer) {
	addrs := splitBrokers(brokers)
	if len(addrs) == 0 {
		logger.Info("events: disabled")
		return kafka.NopPublisher{}, nil
	}

	producer, err := kafka.NewProducer(addrs)
	if err != nil {
		logger.WithError(err).Warn("events: kafka unreachable, using nop publisher")
		return kafka.NopPublisher{}, nil
	}

	logger.WithField("brokers", addrs).Info("events: kafka")
	return producer, producer
}

// splitBrokers разбирает перечень брокеров из конфигурации, отбрасывая
// пустые элементы и окружающие пробелы.
func splitBrokers(raw string) []string {
	var addrs []string
	for _, addr := range strings.Split(raw, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}
