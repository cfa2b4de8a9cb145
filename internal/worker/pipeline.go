package worker

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nadzzz/narrator/internal/audio"
	"github.com/nadzzz/narrator/internal/message"
	"github.com/nadzzz/narrator/internal/tts"
)

// Output formats.
const (
	FormatMP3 = "mp3"
	FormatWAV = "wav"
)

// VoiceSet reports which voices the worker can synthesize.
type VoiceSet interface {
	Has(key string) bool
}

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	DefaultVoice  string
	MaxChunkChars int
	ChunkWorkers  int
	Format        string
	OutputDir     string
}

// Pipeline turns a job into an audio file: it chunks the text, synthesizes
// the chunks concurrently, joins them in order and encodes the result.
type Pipeline struct {
	synth  tts.Synthesizer
	voices VoiceSet
	opts   PipelineOptions
	tracer trace.Tracer
}

// NewPipeline creates a pipeline. voices may be nil to accept any voice.
func NewPipeline(synth tts.Synthesizer, voices VoiceSet, opts PipelineOptions) *Pipeline {
	if opts.Format == "" {
		opts.Format = FormatMP3
	}
	if opts.OutputDir == "" {
		opts.OutputDir = os.TempDir()
	}
	if opts.ChunkWorkers <= 0 {
		opts.ChunkWorkers = 1
	}
	return &Pipeline{
		synth:  synth,
		voices: voices,
		opts:   opts,
		tracer: otel.Tracer("narrator/worker"),
	}
}

// Run synthesizes job and returns the path of the finished file.
func (p *Pipeline) Run(ctx context.Context, job message.SynthesizeJob) (string, error) {
	voice := job.Voice
	if voice == "" {
		voice = p.opts.DefaultVoice
	}
	if p.voices != nil && !p.voices.Has(voice) {
		return "", fmt.Errorf("Voice '%s' not found!", voice)
	}

	chunks := ChunkText(job.Text, p.opts.MaxChunkChars)
	if len(chunks) == 0 {
		return "", errors.New("no text to synthesize")
	}

	ctx, span := p.tracer.Start(ctx, "worker.run", trace.WithAttributes(
		attribute.String("job.id", job.JobID),
		attribute.String("voice", voice),
		attribute.Int("chunks", len(chunks)),
	))
	defer span.End()

	log := slog.With("job_id", job.JobID, "voice", voice)
	log.Info("synthesizing", "chunks", len(chunks))

	results, err := p.synthesizeChunks(ctx, chunks, voice)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	buf, err := join(results)
	if err != nil {
		return "", err
	}
	applyGain(buf, job.Options.VolumeOr(1))

	path, err := p.encode(ctx, job.JobID, buf)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	log.Info("synthesis finished", "path", path)
	return path, nil
}

func (p *Pipeline) synthesizeChunks(ctx context.Context, chunks []string, voice string) ([]*tts.SynthesizeResult, error) {
	results := make([]*tts.SynthesizeResult, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.ChunkWorkers)
	for i, chunk := range chunks {
		g.Go(func() error {
			res, err := p.synth.Synthesize(gctx, chunk, tts.SynthesizeOpts{Voice: voice})
			if err != nil {
				return fmt.Errorf("Chunk %d failed: %w", i+1, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// join concatenates chunk PCM into one buffer. All chunks must share a format.
func join(results []*tts.SynthesizeResult) (*goaudio.IntBuffer, error) {
	first := results[0]
	total := 0
	for i, r := range results {
		if r.SampleRate != first.SampleRate || r.Channels != first.Channels {
			return nil, fmt.Errorf("chunk %d format %d Hz/%d ch differs from %d Hz/%d ch",
				i+1, r.SampleRate, r.Channels, first.SampleRate, first.Channels)
		}
		if len(r.PCM)%2 != 0 {
			return nil, fmt.Errorf("chunk %d: pcm payload not aligned", i+1)
		}
		total += len(r.PCM) / 2
	}

	data := make([]int, 0, total)
	for _, r := range results {
		for i := 0; i+1 < len(r.PCM); i += 2 {
			data = append(data, int(int16(binary.LittleEndian.Uint16(r.PCM[i:]))))
		}
	}
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: first.Channels, SampleRate: first.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}, nil
}

func applyGain(buf *goaudio.IntBuffer, gain float64) {
	if gain == 1 || math.IsNaN(gain) || gain < 0 {
		return
	}
	for i, v := range buf.Data {
		s := math.Round(float64(v) * gain)
		buf.Data[i] = int(max(math.MinInt16, min(math.MaxInt16, s)))
	}
}

func (p *Pipeline) encode(ctx context.Context, jobID string, buf *goaudio.IntBuffer) (string, error) {
	base := filepath.Join(p.opts.OutputDir, fmt.Sprintf("tts_%s_%s", jobID, uuid.NewString()[:8]))
	wavPath := base + ".wav"
	if err := writeWAV(wavPath, buf); err != nil {
		return "", err
	}
	if p.opts.Format == FormatWAV {
		return wavPath, nil
	}

	mp3Path := base + ".mp3"
	err := audio.Transcode(ctx, wavPath, mp3Path, ffmpeg.KwArgs{"codec:a": "libmp3lame", "qscale:a": "2"})
	if rmErr := os.Remove(wavPath); rmErr != nil {
		slog.Warn("removing intermediate wav", "path", wavPath, "error", rmErr)
	}
	if err != nil {
		_ = os.Remove(mp3Path)
		return "", fmt.Errorf("encoding mp3: %w", err)
	}
	return mp3Path, nil
}

func writeWAV(path string, buf *goaudio.IntBuffer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating wav: %w", err)
	}
	enc := wav.NewEncoder(f, buf.Format.SampleRate, 16, buf.Format.NumChannels, 1)
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return f.Close()
}
