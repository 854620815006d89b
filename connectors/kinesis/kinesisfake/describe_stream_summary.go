package kinesisfake

import (
	"encoding/json"
)

type DescribeStreamSummaryRequest struct {
	StreamARN  string
	StreamName string
}

type StreamDescriptionSummary struct {
	OpenShardCount       int
	RetentionPeriodHours int
	StreamARN            string
	StreamName           string
	StreamStatus         string
}

type DescribeStreamSummaryResponse struct {
	StreamDescriptionSummary StreamDescriptionSummary
}

func (f *Fake) describeStreamSummary(body []byte) (*DescribeStreamSummaryResponse, error) {
	var request DescribeStreamSummaryRequest
	if err := json.Unmarshal(body, &request); err != nil {
		return nil, err
	}

	name := request.StreamName
	if request.StreamARN != "" {
		name = streamNameFromARN(request.StreamARN)
	}
	s := f.streams[name]
	if s == nil {
		return nil, &ResourceNotFoundException{message: "Stream " + name + " not found."}
	}

	return &DescribeStreamSummaryResponse{
		StreamDescriptionSummary: StreamDescriptionSummary{
			OpenShardCount:       len(s.shards),
			RetentionPeriodHours: 24,
			StreamARN:            arnFromStreamName(name),
			StreamName:           name,
			StreamStatus:         "ACTIVE",
		},
	}, nil
}
