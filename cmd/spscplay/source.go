package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// source reads a WAV file one chunk of interleaved samples at a time.
// It is owned by the feeder goroutine.
type source struct {
	dec *wav.Decoder
	buf *audio.IntBuffer
	pcm []int

	rate     int
	channels int
	depth    int

	scale  float32
	offset int
}

func newSource(r io.ReadSeeker, frames int) (*source, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAV file")
	}

	f := dec.Format()
	depth := int(dec.BitDepth)
	if f.NumChannels <= 0 || f.SampleRate <= 0 || depth <= 0 || depth > 32 {
		return nil, fmt.Errorf("unsupported format: %d channels, %d Hz, %d bit", f.NumChannels, f.SampleRate, depth)
	}

	s := &source{
		dec:      dec,
		buf:      &audio.IntBuffer{Format: f, SourceBitDepth: depth},
		pcm:      make([]int, frames*f.NumChannels),
		rate:     f.SampleRate,
		channels: f.NumChannels,
		depth:    depth,
		scale:    float32(int64(1) << (depth - 1)),
	}
	// 8 bit WAV samples are unsigned
	if depth == 8 {
		s.offset = 128
	}
	return s, nil
}

// chunkSamples returns the number of interleaved samples in a full chunk.
func (s *source) chunkSamples() int {
	return len(s.pcm)
}

// read fills the internal sample buffer and returns how many samples it
// holds. Zero means the end of input.
func (s *source) read() (int, error) {
	got := 0
	for got < len(s.pcm) {
		s.buf.Data = s.pcm[got:]
		n, err := s.dec.PCMBuffer(s.buf)
		got += n
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return got, err
		}
		if n == 0 {
			break
		}
	}
	return got, nil
}

// decode converts the first n buffered samples to float32 in [-1, 1)
// and zeroes the rest of dst.
func (s *source) decode(dst []float32, n int) {
	i := 0
	for ; i < n && i < len(dst); i++ {
		dst[i] = float32(s.pcm[i]-s.offset) / s.scale
	}
	clear(dst[i:])
}
