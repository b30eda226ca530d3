// Package stream moves transaction logs between files and Kafka topics.
package stream

import (
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Topic helper
// ---------------------------------------------------------------------------

// CreateTopic creates topic with the given number of partitions. A topic that
// already exists is not an error. Sorted output keeps its order only on a
// single partition.
func CreateTopic(brokers []string, topic string, partitions int32) error {
	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0

	admin, err := sarama.NewClusterAdmin(brokers, config)
	if err != nil {
		return fmt.Errorf("admin connect: %w", err)
	}
	return errors.Join(createTopic(admin, topic, partitions), admin.Close())
}

func createTopic(admin sarama.ClusterAdmin, topic string, partitions int32) error {
	if partitions <= 0 {
		return fmt.Errorf("partitions must be > 0, got %d", partitions)
	}
	err := admin.CreateTopic(topic, &sarama.TopicDetail{
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	}, false)

	var te *sarama.TopicError
	switch {
	case err == nil:
		zap.L().Info("created topic", zap.String("topic", topic))
		return nil
	case errors.Is(err, sarama.ErrTopicAlreadyExists),
		errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists:
		zap.L().Info("topic already exists", zap.String("topic", topic))
		return nil
	default:
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
}
