package kinesisfake

// RejectNextRecords makes PutRecords reject the next n records with the given
// error code, e.g. ProvisionedThroughputExceededException.
func (f *Fake) RejectNextRecords(n int, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectNext = n
	f.rejectCode = code
}

// Records returns every record accepted for a stream, grouped by shard.
func (f *Fake) Records(streamName string) []Record {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.streams[streamName]
	if s == nil {
		return nil
	}
	var out []Record
	for _, sh := range s.shards {
		out = append(out, sh.records...)
	}
	return out
}

// PutRecordsRequests counts PutRecords calls.
func (f *Fake) PutRecordsRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.putRecordsReqs
}
