package kinesisfake

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
)

type PutRecordsRequest struct {
	Records   []*PutRecordsRequestEntry
	StreamARN string
}

type PutRecordsRequestEntry struct {
	Data         string
	PartitionKey string
}

type PutRecordsResponseEntry struct {
	ErrorCode      *string `json:",omitempty"`
	ErrorMessage   *string `json:",omitempty"`
	ShardId        string  `json:",omitempty"`
	SequenceNumber string  `json:",omitempty"`
}

type PutRecordsResponse struct {
	FailedRecordCount int
	Records           []*PutRecordsResponseEntry
}

func (f *Fake) putRecords(body []byte) (*PutRecordsResponse, error) {
	f.putRecordsReqs++

	var request PutRecordsRequest
	if err := json.Unmarshal(body, &request); err != nil {
		return nil, fmt.Errorf("decode PutRecordsRequest: %w", err)
	}

	streamName := streamNameFromARN(request.StreamARN)
	s := f.streams[streamName]
	if s == nil {
		return nil, &ResourceNotFoundException{
			message: fmt.Sprintf("Stream %s under account %s not found.", streamName, "123456789012"),
		}
	}

	resp := &PutRecordsResponse{}
	for _, r := range request.Records {
		if f.rejectNext > 0 {
			f.rejectNext--
			resp.FailedRecordCount++
			resp.Records = append(resp.Records, &PutRecordsResponseEntry{
				ErrorCode:    &f.rejectCode,
				ErrorMessage: new(string),
			})
			continue
		}

		data, err := base64.StdEncoding.DecodeString(r.Data)
		if err != nil {
			return nil, fmt.Errorf("decode record data: %w", err)
		}

		sh := pickShard(r.PartitionKey, s.shards)
		sh.records = append(sh.records, Record{Data: data, PartitionKey: r.PartitionKey})
		resp.Records = append(resp.Records, &PutRecordsResponseEntry{
			ShardId:        sh.id,
			SequenceNumber: strconv.Itoa(len(sh.records)),
		})
	}
	return resp, nil
}

func pickShard(partitionKey string, shards []*shard) *shard {
	hash := md5.Sum([]byte(partitionKey))
	rangeKey := new(big.Int).SetBytes(hash[:])

	for _, s := range shards {
		if s.hashKeyRange.includes(rangeKey) {
			return s
		}
	}
	return shards[0]
}
