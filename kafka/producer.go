package kafka

import (
	"encoding/json"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/henryq1230/easydeals-backend/service"
)

const notificationTopic = "notifications.push"

// Producer publishes notification events for the external push fan-out.
// Delivery is fire-and-forget: failures are logged and dropped so they
// can never roll back an order or payment transaction.
type Producer struct {
	producer sarama.SyncProducer
	logger   *zap.Logger
}

func NewProducer(broker string, logger *zap.Logger) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll

	producer, err := sarama.NewSyncProducer([]string{broker}, config)
	if err != nil {
		return nil, err
	}
	logger.Info("kafka producer initialized", zap.String("broker", broker))
	return &Producer{producer: producer, logger: logger}, nil
}

func (p *Producer) Notify(n service.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		p.logger.Error("failed to marshal notification", zap.Error(err))
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: notificationTopic,
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		p.logger.Error("failed to publish notification",
			zap.Uint("recipient_id", n.RecipientID),
			zap.String("category", n.Category),
			zap.Error(err))
		return
	}
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
