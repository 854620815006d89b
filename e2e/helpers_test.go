package e2e_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"reduction.dev/ckptsink/config"
	"reduction.dev/ckptsink/jobrun"
)

// numberedRecords returns "e0".."e<n-1>" and the same records as
// newline-delimited input.
func numberedRecords(n int) (string, []string) {
	records := make([]string, n)
	for i := range records {
		records[i] = fmt.Sprintf("e%d", i)
	}
	return strings.Join(records, "\n") + "\n", records
}

func loadJob(t *testing.T, doc string, params map[string]string) *config.Config {
	t.Helper()
	p := config.NewParams()
	for k, v := range params {
		p.Set(k, v)
	}
	cfg, err := config.Unmarshal([]byte(doc), p)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func runJob(cfg *config.Config, input string) error {
	return jobrun.Run(context.Background(), jobrun.RunParams{
		Config: cfg,
		Input:  strings.NewReader(input),
	})
}
