package autometric

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStreamInstrumentation(t *testing.T, name string, opts CreateOptions) *StreamInstrumentation {
	t.Helper()
	inst, err := CreateStreamInstrumentation(name, opts)
	require.NoError(t, err)
	return inst
}

func TestStreamInstrumentation_Accessors(t *testing.T) {
	inst := newStreamInstrumentation(t, "stream_accessors", CreateOptions{Labels: Labels{"a": "b"}})

	assert.Equal(t, "stream_accessors", inst.Prefix())
	assert.Equal(t, Labels{"a": "b"}, inst.Labels())
	assert.NotNil(t, inst.Registry())
}

func TestPipe(t *testing.T) {
	t.Run("three text chunks", func(t *testing.T) {
		inst := newStreamInstrumentation(t, "three_chunks", CreateOptions{})
		p := inst.NewPipe(StreamCallOptions{})

		chunks := []string{"first chunk", "second chunk", "third chunk"}
		for _, c := range chunks {
			assert.Equal(t, c, p.Transform(c))
		}
		p.End()

		reg := inst.Registry()
		assert.Equal(t, 3, p.Chunks())
		assert.Equal(t, uint64(3), summaryCount(t, reg, "three_chunks_chunk_sizes_bytes"))
		assert.Equal(t, 34.0, summarySum(t, reg, "three_chunks_throughput_bytes"))
		assert.Equal(t, uint64(2), summaryCount(t, reg, "three_chunks_elapsed_time_ms"))
		assert.Equal(t, 1.0, counterTotal(t, reg, "three_chunks_ends_total"))
		assert.Equal(t, 0.0, counterTotal(t, reg, "three_chunks_non_emits_total"))
	})

	t.Run("zero chunks still reports an end", func(t *testing.T) {
		mock := clock.NewMock()
		inst := newStreamInstrumentation(t, "no_chunks", CreateOptions{Clock: mock})
		p := inst.NewPipe(StreamCallOptions{})

		mock.Add(75 * time.Millisecond)
		p.End()

		reg := inst.Registry()
		assert.Equal(t, 1.0, counterTotal(t, reg, "no_chunks_ends_total"))
		assert.Equal(t, 1.0, counterTotal(t, reg, "no_chunks_non_emits_total"))
		assert.Equal(t, uint64(1), summaryCount(t, reg, "no_chunks_durations_ms"))
		assert.Equal(t, 75.0, summarySum(t, reg, "no_chunks_durations_ms"))
		assert.Equal(t, 0.0, summarySum(t, reg, "no_chunks_throughput_bytes"))
	})

	t.Run("duration starts at the first chunk", func(t *testing.T) {
		mock := clock.NewMock()
		inst := newStreamInstrumentation(t, "timed_chunks", CreateOptions{Clock: mock})
		p := inst.NewPipe(StreamCallOptions{})

		mock.Add(time.Second)
		p.Transform([]byte("abc"))
		mock.Add(20 * time.Millisecond)
		p.Transform([]byte("de"))
		mock.Add(30 * time.Millisecond)
		p.End()

		reg := inst.Registry()
		assert.Equal(t, 50.0, summarySum(t, reg, "timed_chunks_durations_ms"))
		assert.Equal(t, 20.0, summarySum(t, reg, "timed_chunks_elapsed_time_ms"))
		assert.Equal(t, 5.0, summarySum(t, reg, "timed_chunks_throughput_bytes"))
	})

	t.Run("structured values count as one", func(t *testing.T) {
		inst := newStreamInstrumentation(t, "object_mode", CreateOptions{})
		p := inst.NewPipe(StreamCallOptions{})

		type event struct{ ID int }
		for i := 0; i < 4; i++ {
			p.Transform(event{ID: i})
		}
		p.End()

		assert.Equal(t, 4.0, p.Throughput())
		assert.Equal(t, 4.0, summarySum(t, inst.Registry(), "object_mode_chunk_sizes_bytes"))
	})

	t.Run("end is recorded once and later chunks are not measured", func(t *testing.T) {
		inst := newStreamInstrumentation(t, "ended_twice", CreateOptions{})
		p := inst.NewPipe(StreamCallOptions{})

		p.Transform("x")
		p.End()
		p.End()
		assert.Equal(t, "late", p.Transform("late"))

		reg := inst.Registry()
		assert.Equal(t, 1.0, counterTotal(t, reg, "ended_twice_ends_total"))
		assert.Equal(t, uint64(1), summaryCount(t, reg, "ended_twice_chunk_sizes_bytes"))
	})

	t.Run("labels are rewritten per chunk", func(t *testing.T) {
		inst := newStreamInstrumentation(t, "rewrite_stream", CreateOptions{Labels: Labels{"s": "1"}})
		p := inst.NewPipe(StreamCallOptions{
			Labels: Labels{"c": "2"},
			RewriteLabels: func(current Labels, chunk any, _ CreateOptions, _ StreamCallOptions) Labels {
				return Labels{"kind": chunk.(string)[:1]}
			},
		})

		p.Transform("a-chunk")
		p.Transform("b-chunk")
		p.End()

		reg := inst.Registry()
		series(t, reg, "rewrite_stream_chunk_sizes_bytes", Labels{"s": "1", "c": "2", "kind": "a"})
		series(t, reg, "rewrite_stream_chunk_sizes_bytes", Labels{"s": "1", "c": "2", "kind": "b"})
		series(t, reg, "rewrite_stream_ends_total", Labels{"s": "1", "c": "2", "kind": "b"})
	})
}

func TestReader(t *testing.T) {
	inst := newStreamInstrumentation(t, "reader_stream", CreateOptions{})
	src := "some payload that is read in small pieces"

	r := inst.NewReader(io.NopCloser(strings.NewReader(src)), StreamCallOptions{})
	got, err := io.ReadAll(io.LimitReader(r, 1<<20))
	require.NoError(t, err)
	require.NoError(t, r.Close())

	assert.Equal(t, src, string(got))
	reg := inst.Registry()
	assert.Equal(t, float64(len(src)), summarySum(t, reg, "reader_stream_throughput_bytes"))
	assert.Equal(t, 1.0, counterTotal(t, reg, "reader_stream_ends_total"))
	assert.Equal(t, r.Pipe().Chunks(), int(summaryCount(t, reg, "reader_stream_chunk_sizes_bytes")))
}

func TestWriter(t *testing.T) {
	inst := newStreamInstrumentation(t, "writer_stream", CreateOptions{})
	var buf bytes.Buffer

	w := inst.NewWriter(&buf, StreamCallOptions{})
	for _, c := range []string{"first chunk", "second chunk", "third chunk"} {
		_, err := w.Write([]byte(c))
		require.NoError(t, err)
	}

	reg := inst.Registry()
	assert.Equal(t, 0.0, counterTotal(t, reg, "writer_stream_ends_total"))

	require.NoError(t, w.Close())

	assert.Equal(t, "first chunksecond chunkthird chunk", buf.String())
	assert.Equal(t, 3, w.Pipe().Chunks())
	assert.Equal(t, 1.0, counterTotal(t, reg, "writer_stream_ends_total"))
	assert.Equal(t, 0.0, counterTotal(t, reg, "writer_stream_non_emits_total"))
}

func TestChannel(t *testing.T) {
	t.Run("forwards values and ends on close", func(t *testing.T) {
		inst := newStreamInstrumentation(t, "channel_stream", CreateOptions{})
		in := make(chan map[string]int)

		out := Channel(context.Background(), inst, in, StreamCallOptions{})
		go func() {
			for i := 0; i < 3; i++ {
				in <- map[string]int{"i": i}
			}
			close(in)
		}()

		var got []map[string]int
		for v := range out {
			got = append(got, v)
		}

		assert.Len(t, got, 3)
		reg := inst.Registry()
		assert.Equal(t, 3.0, summarySum(t, reg, "channel_stream_throughput_bytes"))
		assert.Equal(t, 1.0, counterTotal(t, reg, "channel_stream_ends_total"))
	})

	t.Run("cancelled context abandons the stream", func(t *testing.T) {
		inst := newStreamInstrumentation(t, "abandoned_stream", CreateOptions{})
		in := make(chan []byte)
		ctx, cancel := context.WithCancel(context.Background())

		out := Channel(ctx, inst, in, StreamCallOptions{})
		cancel()

		for range out {
		}

		assert.Equal(t, 0.0, counterTotal(t, inst.Registry(), "abandoned_stream_ends_total"))
	})
}
