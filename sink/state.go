package sink

// CheckpointState is the serialized bookkeeping of a Writer at a checkpoint.
// The adapter only relays it between the engine's state backend and the
// Writer. A nil CheckpointState means no state was recovered.
type CheckpointState []byte
