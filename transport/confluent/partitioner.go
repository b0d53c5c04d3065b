package confluent

import "github.com/twmb/franz-go/pkg/kgo"

// unpinned is the Partition of records that let the partitioner choose.
const unpinned int32 = -1

// NewPartitioner returns a kgo.Partitioner that keeps the partition of pinned
// records and uses the sticky key partitioner for the rest.
func NewPartitioner() kgo.Partitioner {
	return partitioner{fallback: kgo.StickyKeyPartitioner(nil)}
}

type partitioner struct {
	fallback kgo.Partitioner
}

func (p partitioner) ForTopic(topic string) kgo.TopicPartitioner {
	return &topicPartitioner{fallback: p.fallback.ForTopic(topic)}
}

type topicPartitioner struct {
	fallback kgo.TopicPartitioner
}

func (p *topicPartitioner) RequiresConsistency(r *kgo.Record) bool {
	return r.Partition >= 0 || p.fallback.RequiresConsistency(r)
}

// Partition returns the pinned partition when it exists, otherwise the
// fallback's choice. Pins beyond the partition count fall back too.
func (p *topicPartitioner) Partition(r *kgo.Record, n int) int {
	if r.Partition >= 0 && int(r.Partition) < n {
		return int(r.Partition)
	}
	return p.fallback.Partition(r, n)
}

func (p *topicPartitioner) OnNewBatch() {
	if nb, ok := p.fallback.(kgo.TopicPartitionerOnNewBatch); ok {
		nb.OnNewBatch()
	}
}
