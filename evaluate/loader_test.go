package evaluate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardIndices(t *testing.T) {
	tests := []struct {
		name       string
		n, world   int
		wantByRank [][]int
	}{
		{name: "even", n: 4, world: 2, wantByRank: [][]int{{0, 2}, {1, 3}}},
		{name: "padded", n: 5, world: 2, wantByRank: [][]int{{0, 2, 4}, {1, 3, 0}}},
		{name: "more ranks than samples", n: 2, world: 4, wantByRank: [][]int{{0}, {1}, {0}, {1}}},
		{name: "single rank", n: 3, world: 1, wantByRank: [][]int{{0, 1, 2}}},
		{name: "empty", n: 0, world: 2, wantByRank: [][]int{nil, nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := map[int]bool{}
			for rank, want := range tt.wantByRank {
				got := ShardIndices(tt.n, rank, tt.world)
				assert.Equal(t, want, got)
				for _, i := range got {
					seen[i] = true
				}
			}
			assert.Len(t, seen, tt.n, "every sample is covered")
		})
	}
}

func syntheticDataset(n int) *Dataset {
	ds := &Dataset{Name: "synthetic"}
	for i := 0; i < n; i++ {
		ds.Samples = append(ds.Samples, Sample{Index: i, Path: fmt.Sprintf("img-%d.png", i)})
	}
	return ds
}

func TestLoader_EachInOrder(t *testing.T) {
	data := pngBytes(t, 16)
	l, err := NewLoader(syntheticDataset(7), LoaderOptions{
		BatchSize: 2,
		Workers:   3,
		Prefetch:  2,
		InputSize: 32,
		ReadFile:  func(string) ([]byte, error) { return data, nil },
	})
	require.NoError(t, err)
	assert.Equal(t, 4, l.Len())

	var got []int
	var sizes []int
	err = l.Each(context.Background(), func(b *Batch) error {
		sizes = append(sizes, len(b.Inputs))
		for i, s := range b.Samples {
			got = append(got, s.Index)
			assert.Len(t, b.Inputs[i].Data, 3*32*32)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, got)
	assert.Equal(t, []int{2, 2, 2, 1}, sizes)
}

func TestLoader_Shard(t *testing.T) {
	data := pngBytes(t, 8)
	l, err := NewLoader(syntheticDataset(5), LoaderOptions{
		BatchSize: 2,
		InputSize: 8,
		Rank:      1,
		World:     2,
		ReadFile:  func(string) ([]byte, error) { return data, nil },
	})
	require.NoError(t, err)

	var got []int
	require.NoError(t, l.Each(context.Background(), func(b *Batch) error {
		for _, s := range b.Samples {
			got = append(got, s.Index)
		}
		return nil
	}))
	assert.Equal(t, []int{1, 3, 0}, got)
}

func TestLoader_Errors(t *testing.T) {
	data := pngBytes(t, 8)
	readErr := errors.New("disk gone")

	t.Run("read failure", func(t *testing.T) {
		l, err := NewLoader(syntheticDataset(4), LoaderOptions{
			BatchSize: 1,
			Workers:   2,
			InputSize: 8,
			ReadFile: func(path string) ([]byte, error) {
				if path == "img-2.png" {
					return nil, readErr
				}
				return data, nil
			},
		})
		require.NoError(t, err)
		err = l.Each(context.Background(), func(*Batch) error { return nil })
		assert.ErrorIs(t, err, readErr)
	})

	t.Run("consumer failure", func(t *testing.T) {
		l, err := NewLoader(syntheticDataset(4), LoaderOptions{
			BatchSize: 1,
			InputSize: 8,
			ReadFile:  func(string) ([]byte, error) { return data, nil },
		})
		require.NoError(t, err)
		stop := errors.New("stop")
		err = l.Each(context.Background(), func(*Batch) error { return stop })
		assert.ErrorIs(t, err, stop)
	})

	t.Run("bad options", func(t *testing.T) {
		_, err := NewLoader(syntheticDataset(1), LoaderOptions{BatchSize: 1, InputSize: 8, Rank: 2, World: 2})
		assert.Error(t, err)
		_, err = NewLoader(syntheticDataset(1), LoaderOptions{BatchSize: 0, InputSize: 8})
		assert.Error(t, err)
	})
}
