// Package kinesisfake is an HTTP server that speaks enough of the Kinesis JSON
// protocol to exercise the Kinesis transport with the real AWS SDK client.
package kinesisfake

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

func StartFake() (*httptest.Server, *Fake) {
	fk := &Fake{streams: make(map[string]*stream)}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		route(fk, w, r)
	})
	return httptest.NewServer(mux), fk
}

func route(f *Fake, w http.ResponseWriter, r *http.Request) {
	_, operation, _ := strings.Cut(r.Header.Get("x-amz-target"), ".")
	w.Header().Set("Content-Type", "application/x-amz-json-1.1")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		handleError(w, err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var resp any
	switch operation {
	case "CreateStream":
		resp, err = f.createStream(body)
	case "DescribeStreamSummary":
		resp, err = f.describeStreamSummary(body)
	case "PutRecords":
		resp, err = f.putRecords(body)
	default:
		err = &UnsupportedOperationError{Operation: operation}
	}

	if err != nil {
		handleError(w, err)
		return
	}
	json.NewEncoder(w).Encode(resp)
}

type stream struct {
	shards []*shard
}

// Interal tracked state of a shard
type shard struct {
	id           string
	records      []Record
	hashKeyRange hashKeyRange
}

type hashKeyRange struct {
	startingHashKey *big.Int
	endingHashKey   *big.Int
}

func (r hashKeyRange) includes(key *big.Int) bool {
	return r.startingHashKey.Cmp(key) <= 0 && r.endingHashKey.Cmp(key) >= 0
}

type Record struct {
	Data         []byte
	PartitionKey string
}

type Fake struct {
	mu             sync.Mutex
	streams        map[string]*stream
	rejectNext     int
	rejectCode     string
	putRecordsReqs int
}

func arnFromStreamName(streamName string) string {
	return fmt.Sprintf("arn:aws:kinesis:us-east-2:123456789012:stream/%s", streamName)
}

func streamNameFromARN(arn string) string {
	parts := strings.Split(arn, "/")
	return parts[len(parts)-1]
}
