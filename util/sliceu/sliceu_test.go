package sliceu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"reduction.dev/ckptsink/util/sliceu"
)

func TestPartition(t *testing.T) {
	assert.Equal(t, [][]int{{1, 4}, {2, 5}, {3}}, sliceu.Partition([]int{1, 2, 3, 4, 5}, 3))
	assert.Equal(t, [][]int{{1}, nil}, sliceu.Partition([]int{1}, 2), "groups may be empty")
	assert.Panics(t, func() { sliceu.Partition([]int{1}, 0) })
}

func TestMap(t *testing.T) {
	assert.Equal(t, []string{"a!", "b!"}, sliceu.Map([]string{"a", "b"}, func(s string) string { return s + "!" }))
}
