package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aradilov/spsc/internal/chunkpool"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const testRate = 8000

// writeWAV writes mono 16 bit samples 1, 2, ..., n and returns the path.
func writeWAV(t *testing.T, n int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "in.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	data := make([]int, n)
	for i := range data {
		data[i] = i + 1
	}

	enc := wav.NewEncoder(f, testRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: testRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func openSource(t *testing.T, path string, frames int) *source {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })

	src, err := newSource(f, frames)
	if err != nil {
		t.Fatal(err)
	}
	return src
}

func TestSourceFormat(t *testing.T) {
	src := openSource(t, writeWAV(t, 10), 8)

	if src.rate != testRate || src.channels != 1 || src.depth != 16 {
		t.Fatalf("unexpected format: %d Hz, %d channels, %d bit", src.rate, src.channels, src.depth)
	}
	if src.chunkSamples() != 8 {
		t.Fatalf("expected 8 samples per chunk, got %d", src.chunkSamples())
	}
}

func TestSourcePadsPartialChunk(t *testing.T) {
	src := openSource(t, writeWAV(t, 10), 8)

	dst := make([]float32, 8)
	for _, expected := range []int{8, 2, 0} {
		got, err := src.read()
		if err != nil {
			t.Fatal(err)
		}
		if got != expected {
			t.Fatalf("expected %d samples, got %d", expected, got)
		}
	}

	for i := range dst {
		dst[i] = 9
	}
	src.pcm[0], src.pcm[1] = 16384, -32768
	src.decode(dst, 2)

	expected := []float32{0.5, -1, 0, 0, 0, 0, 0, 0}
	for i := range expected {
		if dst[i] != expected[i] {
			t.Fatalf("sample %d: expected %v, got %v", i, expected[i], dst[i])
		}
	}
}

func TestNewSourceRejectsGarbage(t *testing.T) {
	if _, err := newSource(bytes.NewReader([]byte("definitely not a wav file")), 8); err == nil {
		t.Fatalf("expected error for a non-WAV input")
	}
}

// playAll runs the feeder and the device until the device played want
// chunks and returns the decoded output with underrun silence removed.
func playAll(t *testing.T, src *source, want int) (int, []float32) {
	t.Helper()

	samples := src.chunkSamples()
	pool, err := chunkpool.New(3, func() []float32 { return make([]float32, samples) })
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	dev := newDevice(pool, bufio.NewWriter(&out), samples)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	played := make(chan struct{})
	go func() {
		defer close(played)
		for dev.played.Load() < uint64(want) {
			if ctx.Err() != nil {
				t.Errorf("device: %v", ctx.Err())
				return
			}
			if err := dev.tick(); err != nil {
				t.Errorf("tick: %v", err)
				return
			}
			time.Sleep(time.Microsecond)
		}
		dev.w.Flush()
	}()

	n, err := feed(ctx, pool, src, time.Microsecond)
	if err != nil {
		cancel()
		<-played
		t.Fatal(err)
	}
	<-played

	raw := out.Bytes()
	var got []float32
	for i := 0; i+4 <= len(raw); i += 4 {
		got = append(got, math.Float32frombits(binary.LittleEndian.Uint32(raw[i:])))
	}
	if dev.underruns.Load()+dev.played.Load() != uint64(len(got)/samples) {
		t.Fatalf("chunk accounting mismatch: %d played, %d underruns, %d written",
			dev.played.Load(), dev.underruns.Load(), len(got)/samples)
	}

	// drop silent chunks written on underrun
	var pcm []float32
	for i := 0; i+samples <= len(got); i += samples {
		chunk := got[i : i+samples]
		if chunk[0] == 0 {
			continue
		}
		pcm = append(pcm, chunk...)
	}
	return n, pcm
}

// The feeder and the device together must reproduce the input, padded to
// a whole chunk.
func TestFeedAndPlay(t *testing.T) {
	const (
		samples = 8
		total   = samples*5 + 3
	)

	n, pcm := playAll(t, openSource(t, writeWAV(t, total), samples), 6)
	if n != 6 {
		t.Fatalf("expected 6 chunks, got %d", n)
	}
	if len(pcm) != 6*samples {
		t.Fatalf("expected %d samples, got %d", 6*samples, len(pcm))
	}
	for i, s := range pcm {
		var expected float32
		if i < total {
			expected = float32(i+1) / 32768
		}
		if s != expected {
			t.Fatalf("sample %d: expected %v, got %v", i, expected, s)
		}
	}
}

// Input that ends on a chunk boundary must not produce a trailing silent chunk.
func TestFeedExactChunks(t *testing.T) {
	const samples = 8

	n, pcm := playAll(t, openSource(t, writeWAV(t, samples*5), samples), 5)
	if n != 5 {
		t.Fatalf("expected 5 chunks, got %d", n)
	}
	if len(pcm) != 5*samples {
		t.Fatalf("expected %d samples, got %d", 5*samples, len(pcm))
	}
	if last := pcm[len(pcm)-1]; last != float32(5*samples)/32768 {
		t.Fatalf("unexpected last sample %v", last)
	}
}

func setFlags(t *testing.T, in, out string) {
	t.Helper()

	old := [...]any{*inPath, *outPath, *chunks, *frames, *tail, *poll}
	t.Cleanup(func() {
		*inPath = old[0].(string)
		*outPath = old[1].(string)
		*chunks = old[2].(int)
		*frames = old[3].(int)
		*tail = old[4].(time.Duration)
		*poll = old[5].(time.Duration)
	})

	*inPath, *outPath = in, out
	*chunks, *frames = 3, 8
	*tail, *poll = 200*time.Millisecond, time.Millisecond
}

func TestRunWritesOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.raw")
	setFlags(t, writeWAV(t, 40), out)

	if err := run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	st, err := os.Stat(out)
	if err != nil {
		t.Fatal(err)
	}
	if st.Size() == 0 || st.Size()%(8*4) != 0 {
		t.Fatalf("expected whole chunks in the output, got %d bytes", st.Size())
	}
}

func TestRunReportsErrors(t *testing.T) {
	dir := t.TempDir()

	setFlags(t, filepath.Join(dir, "missing.wav"), "")
	if err := run(); err == nil {
		t.Fatalf("expected error for a missing input")
	}

	setFlags(t, writeWAV(t, 40), filepath.Join(dir, "no", "such", "dir", "out.raw"))
	if err := run(); err == nil {
		t.Fatalf("expected error for an output in a missing directory")
	}

	setFlags(t, writeWAV(t, 40), "")
	*frames = 0
	if err := run(); err == nil {
		t.Fatalf("expected error for zero frames")
	}
}
