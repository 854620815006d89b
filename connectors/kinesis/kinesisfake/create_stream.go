package kinesisfake

import (
	"encoding/json"
	"fmt"
	"math/big"
)

type CreateStreamRequest struct {
	ShardCount int64
	StreamName string
}

type CreateStreamResponse struct{}

func (f *Fake) createStream(body []byte) (*CreateStreamResponse, error) {
	var request CreateStreamRequest
	if err := json.Unmarshal(body, &request); err != nil {
		return nil, err
	}
	if request.ShardCount < 1 {
		request.ShardCount = 1
	}

	f.streams[request.StreamName] = &stream{
		shards: createShards(request.ShardCount),
	}
	return &CreateStreamResponse{}, nil
}

// createShards splits the 128 bit hash key space evenly.
func createShards(count int64) []*shard {
	shards := make([]*shard, count)
	max := new(big.Int).Exp(big.NewInt(2), big.NewInt(128), nil)
	max.Sub(max, big.NewInt(1))
	shardRange := new(big.Int).Div(max, big.NewInt(count))

	for i := range count {
		start := new(big.Int).Mul(shardRange, big.NewInt(i))
		end := new(big.Int).Sub(new(big.Int).Mul(shardRange, big.NewInt(i+1)), big.NewInt(1))
		if i == count-1 {
			end = max
		}
		shards[i] = &shard{
			id:           fmt.Sprintf("shardId-%012d", i),
			hashKeyRange: hashKeyRange{startingHashKey: start, endingHashKey: end},
		}
	}
	return shards
}
