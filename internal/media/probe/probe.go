package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// VideoStream describes a single video stream in the container.
type VideoStream struct {
	Index       int
	Codec       string
	Profile     string
	PixelFormat string
	Width       int
	Height      int
	BitDepth    int
}

// AudioStream describes a single audio stream in the container.
type AudioStream struct {
	Index    int
	Codec    string
	Channels int
	Language string
}

// Metadata is the parsed result of probing one file.
type Metadata struct {
	Path            string
	Container       string
	Video           []VideoStream
	Audio           []AudioStream
	HasSubtitles    bool
	DurationSeconds float64
	SizeBytes       int64
}

// PrimaryVideo returns the first video stream, or nil when none exists.
func (m Metadata) PrimaryVideo() *VideoStream {
	if len(m.Video) == 0 {
		return nil
	}
	return &m.Video[0]
}

// PrimaryAudio returns the first audio stream, or nil when none exists.
func (m Metadata) PrimaryAudio() *AudioStream {
	if len(m.Audio) == 0 {
		return nil
	}
	return &m.Audio[0]
}

// Error reports a failed probe. It wraps the underlying cause.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNoStreams indicates ffprobe produced output without any streams.
var ErrNoStreams = errors.New("no streams in ffprobe output")

// Client wraps ffprobe invocations.
type Client struct {
	binary  string
	timeout time.Duration
	exec    Executor
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// New constructs an ffprobe client. A zero timeout disables the deadline.
func New(binary string, timeoutSeconds int, opts ...Option) *Client {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	client := &Client{
		binary:  binary,
		timeout: time.Duration(timeoutSeconds) * time.Second,
		exec:    commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Inspect runs ffprobe against path and parses its JSON output. A hung
// ffprobe process is bounded by the client timeout and surfaces as an error.
func (c *Client) Inspect(ctx context.Context, path string) (Metadata, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Metadata{}, &Error{Path: path, Err: errors.New("empty path")}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := []string{"-v", "error", "-print_format", "json", "-show_format", "-show_streams", "--", path}
	output, err := c.exec.Run(ctx, c.binary, args)
	if err != nil {
		return Metadata{}, &Error{Path: path, Err: err}
	}

	var raw rawResult
	if err := json.Unmarshal(output, &raw); err != nil {
		return Metadata{}, &Error{Path: path, Err: fmt.Errorf("parse output: %w", err)}
	}
	if len(raw.Streams) == 0 {
		return Metadata{}, &Error{Path: path, Err: ErrNoStreams}
	}

	return parseResult(raw, path), nil
}

type rawStream struct {
	Index            int               `json:"index"`
	CodecName        string            `json:"codec_name"`
	CodecType        string            `json:"codec_type"`
	Profile          string            `json:"profile"`
	PixFmt           string            `json:"pix_fmt"`
	Width            int               `json:"width"`
	Height           int               `json:"height"`
	BitsPerRawSample string            `json:"bits_per_raw_sample"`
	Channels         int               `json:"channels"`
	Tags             map[string]string `json:"tags"`
}

type rawFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

type rawResult struct {
	Streams []rawStream `json:"streams"`
	Format  rawFormat   `json:"format"`
}

func parseResult(raw rawResult, path string) Metadata {
	meta := Metadata{
		Path:            path,
		Container:       containerName(raw.Format.FormatName),
		DurationSeconds: parseFloat(raw.Format.Duration),
		SizeBytes:       parseInt(raw.Format.Size),
	}

	for _, stream := range raw.Streams {
		switch strings.ToLower(stream.CodecType) {
		case "video":
			meta.Video = append(meta.Video, VideoStream{
				Index:       stream.Index,
				Codec:       strings.ToLower(stream.CodecName),
				Profile:     stream.Profile,
				PixelFormat: stream.PixFmt,
				Width:       stream.Width,
				Height:      stream.Height,
				BitDepth:    bitDepth(stream),
			})
		case "audio":
			language := "und"
			if tag, ok := stream.Tags["language"]; ok && strings.TrimSpace(tag) != "" {
				language = strings.ToLower(strings.TrimSpace(tag))
			}
			meta.Audio = append(meta.Audio, AudioStream{
				Index:    stream.Index,
				Codec:    strings.ToLower(stream.CodecName),
				Channels: stream.Channels,
				Language: language,
			})
		case "subtitle":
			meta.HasSubtitles = true
		}
	}
	return meta
}

// containerName reduces ffprobe's comma-separated format_name to its first
// token, e.g. "mov,mp4,m4a,3gp,3g2,mj2" -> "mov".
func containerName(formatName string) string {
	name := strings.ToLower(strings.TrimSpace(formatName))
	if name == "" {
		return "unknown"
	}
	if idx := strings.IndexByte(name, ','); idx >= 0 {
		name = name[:idx]
	}
	return name
}

func bitDepth(stream rawStream) int {
	if depth, err := strconv.Atoi(strings.TrimSpace(stream.BitsPerRawSample)); err == nil && depth > 0 {
		return depth
	}
	switch {
	case strings.Contains(stream.PixFmt, "12"):
		return 12
	case strings.Contains(stream.PixFmt, "10"):
		return 10
	default:
		return 8
	}
}

func parseFloat(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return parsed
}

func parseInt(value string) int64 {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
