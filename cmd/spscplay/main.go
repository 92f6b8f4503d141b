// Command spscplay streams a WAV file to an output through a simulated
// audio device.
//
// The device goroutine ticks once per buffer period and must never block,
// so it only exchanges chunks with the main goroutine over two spsc
// channels: filled chunks arrive from the file reader, played chunks go
// back for reuse. When no chunk is ready the device plays silence.
//
// The device output is interleaved little-endian float32, the way a sound
// card callback consumes it.
package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/aradilov/spsc/internal/chunkpool"
)

var (
	inPath  = flag.String("in", "", "WAV input file (required)")
	outPath = flag.String("out", "", "raw float32 output file; discarded when empty")
	chunks  = flag.Int("chunks", 15, "number of reusable chunks in flight")
	frames  = flag.Int("frames", 2048, "frames per buffer")
	tail    = flag.Duration("tail", time.Second, "keep playing after the end of input")
	poll    = flag.Duration("poll", 10*time.Millisecond, "retry interval when a channel is full or empty")
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("spscplay: ")
	flag.Parse()

	if *inPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() (err error) {
	if *frames <= 0 {
		return fmt.Errorf("frames must be > 0")
	}

	in, err := os.Open(*inPath)
	if err != nil {
		return fmt.Errorf("cannot open input: %w", err)
	}
	defer in.Close()

	src, err := newSource(in, *frames)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", *inPath, err)
	}

	out := io.Discard
	if *outPath != "" {
		f, cerr := os.Create(*outPath)
		if cerr != nil {
			return fmt.Errorf("cannot create output: %w", cerr)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("cannot close output: %w", cerr)
			}
		}()
		out = f
	}

	samples := src.chunkSamples()
	pool, err := chunkpool.New(*chunks, func() []float32 { return make([]float32, samples) })
	if err != nil {
		return fmt.Errorf("cannot create chunk pool: %w", err)
	}

	period := time.Duration(*frames) * time.Second / time.Duration(src.rate)
	dev := newDevice(pool, bufio.NewWriter(out), samples)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- dev.run(ctx, period) }()

	read, ferr := feed(ctx, pool, src, *poll)

	// let the device drain what is still queued
	if ferr == nil {
		time.Sleep(*tail)
	}
	cancel()
	if err := errors.Join(ferr, <-done); err != nil {
		return err
	}

	rctx, rcancel := context.WithTimeout(context.Background(), time.Second)
	defer rcancel()
	if _, err := pool.Reclaim(rctx, *poll); err != nil {
		return fmt.Errorf("reclaim: %w", err)
	}

	filled, empty := pool.Stats()
	log.Printf("%s: %d Hz, %d channels, %d bit", *inPath, src.rate, src.channels, src.depth)
	log.Printf("read %d chunks, played %d, underruns %d", read, dev.played.Load(), dev.underruns.Load())
	log.Printf("filled channel: %+v", filled)
	log.Printf("empty channel: %+v", empty)
	return nil
}

// feed fills chunks from src until the end of input and returns how many
// chunks it submitted. The last chunk is zero padded; an input that ends
// on a chunk boundary produces no extra silent chunk.
func feed(ctx context.Context, pool *chunkpool.Pool[[]float32], src *source, interval time.Duration) (int, error) {
	n := 0
	for {
		// read first so the end of input never costs a chunk
		got, err := src.read()
		if err != nil {
			return n, fmt.Errorf("feed: %w", err)
		}
		if got == 0 {
			return n, nil
		}

		var chunk []float32
		if err := chunkpool.Poll(ctx, interval, func() bool {
			var ok bool
			chunk, ok = pool.Acquire()
			return ok
		}); err != nil {
			return n, fmt.Errorf("feed: acquire: %w", err)
		}

		src.decode(chunk, got)

		if err := chunkpool.Poll(ctx, interval, func() bool { return pool.Submit(chunk) }); err != nil {
			return n, fmt.Errorf("feed: submit: %w", err)
		}
		n++

		if got < src.chunkSamples() {
			return n, nil
		}
	}
}

type device struct {
	pool    *chunkpool.Pool[[]float32]
	w       *bufio.Writer
	silence []float32
	buf     []byte

	played    atomic.Uint64
	underruns atomic.Uint64
}

func newDevice(pool *chunkpool.Pool[[]float32], w *bufio.Writer, samples int) *device {
	return &device{
		pool:    pool,
		w:       w,
		silence: make([]float32, samples),
		buf:     make([]byte, samples*4),
	}
}

// run plays one buffer per period until ctx is done.
func (d *device) run(ctx context.Context, period time.Duration) error {
	t := time.NewTicker(period)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return d.w.Flush()
		case <-t.C:
			if err := d.tick(); err != nil {
				return err
			}
		}
	}
}

// tick is the realtime callback: it never waits on the feeder.
func (d *device) tick() error {
	chunk, ok := d.pool.Next()
	if !ok {
		d.underruns.Add(1)
		return d.write(d.silence)
	}

	err := d.write(chunk)
	d.played.Add(1)
	// the empty channel holds every chunk, so this succeeds on the first try
	if !d.pool.Recycle(chunk) {
		log.Printf("recycle failed, chunk dropped")
	}
	return err
}

func (d *device) write(samples []float32) error {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(d.buf[i*4:], math.Float32bits(s))
	}
	_, err := d.w.Write(d.buf)
	return err
}
