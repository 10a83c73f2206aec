package kafka

import (
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type Consumer struct {
	consumer sarama.Consumer
	logger   *zap.Logger
}

func NewConsumer(broker string, logger *zap.Logger) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true

	var client sarama.Consumer
	var err error
	for i := 1; i <= 10; i++ {
		client, err = sarama.NewConsumer([]string{broker}, config)
		if err == nil {
			logger.Info("kafka consumer initialized", zap.String("broker", broker))
			return &Consumer{consumer: client, logger: logger}, nil
		}
		logger.Warn("waiting for kafka", zap.Int("attempt", i), zap.Error(err))
		time.Sleep(5 * time.Second)
	}
	return nil, err
}

func (c *Consumer) Consume(topic string, handler func([]byte)) error {
	pc, err := c.consumer.ConsumePartition(topic, 0, sarama.OffsetNewest)
	if err != nil {
		return err
	}
	c.logger.Info("listening on topic", zap.String("topic", topic))

	go func() {
		for {
			select {
			case msg := <-pc.Messages():
				handler(msg.Value)
			case err := <-pc.Errors():
				c.logger.Error("kafka consumer error", zap.String("topic", topic), zap.Error(err))
			}
		}
	}()
	return nil
}
