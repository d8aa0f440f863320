package bus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka publishes through the low-level kafka-go client so each publish
// reports the exact partition and offset the record landed on. The
// higher-level Writer hides both, and the outbox needs them recorded.
type Kafka struct {
	client   *kafka.Client
	balancer kafka.Balancer

	mu         sync.Mutex
	partitions map[string][]int
}

// NewKafka builds a producer against the given brokers.
func NewKafka(brokers []string) *Kafka {
	return &Kafka{
		client: &kafka.Client{
			Addr:    kafka.TCP(brokers...),
			Timeout: 10 * time.Second,
		},
		balancer:   &kafka.Hash{},
		partitions: make(map[string][]int),
	}
}

// partitionsFor returns the partition ids of a topic, cached after the
// first metadata fetch. Kernel topics are created with fixed partition
// counts, so the cache never goes stale in practice.
func (k *Kafka) partitionsFor(ctx context.Context, topic string) ([]int, error) {
	k.mu.Lock()
	ids, ok := k.partitions[topic]
	k.mu.Unlock()
	if ok {
		return ids, nil
	}

	resp, err := k.client.Metadata(ctx, &kafka.MetadataRequest{Topics: []string{topic}})
	if err != nil {
		return nil, fmt.Errorf("metadata for %s: %w", topic, err)
	}
	for _, t := range resp.Topics {
		if t.Name != topic {
			continue
		}
		if t.Error != nil {
			return nil, fmt.Errorf("metadata for %s: %w", topic, t.Error)
		}
		ids = make([]int, 0, len(t.Partitions))
		for _, p := range t.Partitions {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("topic %s has no partitions", topic)
	}
	// The balancer indexes by hash % len, so the slice order decides which
	// partition a key maps to. Metadata responses do not order partitions
	// consistently across brokers; sorting keeps every replica's mapping
	// identical.
	sort.Ints(ids)
	k.mu.Lock()
	k.partitions[topic] = ids
	k.mu.Unlock()
	return ids, nil
}

// Publish writes one record with acks=all and returns where it landed. The
// key is hashed to a partition so all records sharing a key stay ordered.
func (k *Kafka) Publish(ctx context.Context, topic, key string, payload []byte) (PublishResult, error) {
	ids, err := k.partitionsFor(ctx, topic)
	if err != nil {
		return PublishResult{}, err
	}
	partition := k.balancer.Balance(kafka.Message{Key: []byte(key)}, ids...)

	resp, err := k.client.Produce(ctx, &kafka.ProduceRequest{
		Topic:        topic,
		Partition:    partition,
		RequiredAcks: kafka.RequireAll,
		Records: kafka.NewRecordReader(kafka.Record{
			Key:   kafka.NewBytes([]byte(key)),
			Value: kafka.NewBytes(payload),
		}),
	})
	if err != nil {
		return PublishResult{}, fmt.Errorf("produce to %s: %w", topic, err)
	}
	if resp.Error != nil {
		return PublishResult{}, fmt.Errorf("produce to %s: %w", topic, resp.Error)
	}
	return PublishResult{Topic: topic, Partition: partition, Offset: resp.BaseOffset}, nil
}

// Close releases the producer. The low-level client holds no connections of
// its own, so this only clears the metadata cache.
func (k *Kafka) Close() error {
	k.mu.Lock()
	k.partitions = make(map[string][]int)
	k.mu.Unlock()
	return nil
}
