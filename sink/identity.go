package sink

import "fmt"

// SubtaskIdentity names one parallel instance of the sink operator.
type SubtaskIdentity struct {
	Index       int
	Parallelism int
}

func (id SubtaskIdentity) Validate() error {
	if id.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1 but was %d", id.Parallelism)
	}
	if id.Index < 0 || id.Index >= id.Parallelism {
		return fmt.Errorf("subtask index %d out of range for parallelism %d", id.Index, id.Parallelism)
	}
	return nil
}

func (id SubtaskIdentity) String() string {
	return fmt.Sprintf("%d/%d", id.Index, id.Parallelism)
}
