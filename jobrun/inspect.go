package jobrun

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"reduction.dev/ckptsink/checkpoints"
	"reduction.dev/ckptsink/storage/locations"
	"reduction.dev/ckptsink/writer"
)

// Inspect prints a checkpoint file and a summary of the writer state it
// carries.
func Inspect(ctx context.Context, uri string, out io.Writer) error {
	data, err := locations.ReadFile(ctx, uri)
	if err != nil {
		return err
	}
	ckpt, err := checkpoints.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", uri, err)
	}

	p := message.NewPrinter(language.English)
	p.Fprintf(out, "checkpoint:     %d\n", ckpt.ID)
	p.Fprintf(out, "subtask:        %s\n", ckpt.Subtask)
	p.Fprintf(out, "source offset:  %d\n", ckpt.SourceOffset)
	p.Fprintf(out, "created:        %s\n", ckpt.CreatedAt.UTC().Format("2006-01-02 15:04:05.000 MST"))

	if ckpt.WriterState == nil {
		p.Fprintf(out, "writer state:   none\n")
		return nil
	}
	state, err := writer.DecodeState(ckpt.WriterState)
	if err != nil {
		return fmt.Errorf("decoding writer state: %w", err)
	}
	p.Fprintf(out, "writer state:   %d bytes\n", len(ckpt.WriterState))
	p.Fprintf(out, "  label prefix: %s\n", state.LabelPrefix)
	p.Fprintf(out, "  next seq:     %d\n", state.NextSeq)
	p.Fprintf(out, "  pending:      %d records in %d batches, %d open\n",
		state.PendingRecords(), len(state.Batches), len(state.OpenRecords))
	for _, b := range state.Batches {
		p.Fprintf(out, "    %s: %d records, %d bytes\n", b.Label, len(b.Records), b.Bytes())
	}
	return nil
}
