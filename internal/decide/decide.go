package decide

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"conform/internal/media/probe"
)

// Action describes the per-file processing decision.
type Action int

const (
	// Skip leaves the file untouched: container, video, and audio already conform.
	Skip Action = iota
	// Repack rewraps the streams into the target container without touching video.
	Repack
	// Transcode re-encodes at least the video stream.
	Transcode
)

func (a Action) String() string {
	switch a {
	case Skip:
		return "SKIP"
	case Repack:
		return "REPACK"
	case Transcode:
		return "TRANSCODE"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Policy is the read-only classification policy derived from configuration.
type Policy struct {
	TargetContainer     string
	AcceptedVideoCodecs []string
	VideoCodec          string
	NVENC               bool
	AudioCodec          string
	AudioBitrate        string
	StereoDownmix       bool
	DownmixBitrate      string
}

// Fingerprint digests the policy fields that influence classification.
// Cached decisions are valid only under the policy that produced them, so a
// stored fingerprint that no longer matches means the entry is stale.
// Normalization makes the digest stable across codec aliases ("h265" vs
// "hevc") and the ordering of the accepted-codec list.
func (p Policy) Fingerprint() string {
	accepted := make([]string, 0, len(p.AcceptedVideoCodecs))
	for _, codec := range p.AcceptedVideoCodecs {
		accepted = append(accepted, normalizeCodec(codec))
	}
	sort.Strings(accepted)

	h := sha256.New()
	fmt.Fprintf(h, "container=%s\n", normalizeContainer(p.TargetContainer))
	fmt.Fprintf(h, "accepted=%s\n", strings.Join(accepted, ","))
	fmt.Fprintf(h, "video=%s nvenc=%t\n", normalizeCodec(p.VideoCodec), p.NVENC)
	fmt.Fprintf(h, "audio=%s %s\n", normalizeCodec(p.AudioCodec), p.AudioBitrate)
	fmt.Fprintf(h, "downmix=%t %s\n", p.StereoDownmix, p.DownmixBitrate)
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// VideoPlan describes what happens to the video streams.
type VideoPlan struct {
	Passthrough bool
	Codec       string
	NVENC       bool
}

// Downmix describes one stereo companion track to generate from a
// multichannel source stream.
type Downmix struct {
	SourceIndex    int
	SourceChannels int
	Language       string
	Bitrate        string
}

// AudioPlan describes what happens to the audio streams. Passthrough means
// every existing stream is copied unchanged and no downmix tracks are added.
type AudioPlan struct {
	Passthrough bool
	Codec       string
	Bitrate     string
	Downmixes   []Downmix
}

// Decision is the full classification outcome for one file.
type Decision struct {
	Action  Action
	Reasons []string
	Video   VideoPlan
	Audio   AudioPlan
}

var (
	// ErrNoVideoStream marks metadata without any video stream. This is a
	// terminal classification failure, not a policy choice.
	ErrNoVideoStream = errors.New("no video stream")
	// ErrNoAudioStream marks metadata without any audio stream.
	ErrNoAudioStream = errors.New("no audio stream")
)

// Decide maps stream metadata and policy to a processing decision. It is a
// pure function: no I/O, fully deterministic given its inputs.
//
// Resolution order: container check, primary-video acceptability,
// primary-audio codec equality, then action resolution. Resolution and bit
// depth are informational only and never drive a decision by themselves.
func Decide(meta probe.Metadata, policy Policy) (Decision, error) {
	video := meta.PrimaryVideo()
	if video == nil {
		return Decision{}, fmt.Errorf("%s: %w", meta.Path, ErrNoVideoStream)
	}
	audio := meta.PrimaryAudio()
	if audio == nil {
		return Decision{}, fmt.Errorf("%s: %w", meta.Path, ErrNoAudioStream)
	}

	targetContainer := normalizeContainer(policy.TargetContainer)
	containerOK := normalizeContainer(meta.Container) == targetContainer

	var d Decision

	if !containerOK {
		d.Reasons = append(d.Reasons, fmt.Sprintf("container %s → %s", meta.Container, targetContainer))
	}

	if videoAccepted(video.Codec, policy) {
		d.Video = VideoPlan{Passthrough: true}
		d.Reasons = append(d.Reasons, fmt.Sprintf("video %s → keep", video.Codec))
	} else {
		d.Video = VideoPlan{Codec: normalizeCodec(policy.VideoCodec), NVENC: policy.NVENC}
		encoder := "cpu"
		if policy.NVENC {
			encoder = "nvenc"
		}
		d.Reasons = append(d.Reasons, fmt.Sprintf("video %s → %s (%s)", video.Codec, d.Video.Codec, encoder))
	}

	targetAudio := normalizeCodec(policy.AudioCodec)
	downmixes := planDownmixes(meta, policy)
	if normalizeCodec(audio.Codec) == targetAudio && len(downmixes) == 0 {
		d.Audio = AudioPlan{Passthrough: true}
		d.Reasons = append(d.Reasons, fmt.Sprintf("audio %s → keep", audio.Codec))
	} else {
		d.Audio = AudioPlan{Codec: targetAudio, Bitrate: policy.AudioBitrate, Downmixes: downmixes}
		if normalizeCodec(audio.Codec) != targetAudio {
			d.Reasons = append(d.Reasons, fmt.Sprintf("audio %s → %s", audio.Codec, targetAudio))
		}
		for _, mix := range downmixes {
			d.Reasons = append(d.Reasons, fmt.Sprintf("downmix #%d %dch → stereo", mix.SourceIndex, mix.SourceChannels))
		}
	}

	switch {
	case containerOK && d.Video.Passthrough && d.Audio.Passthrough:
		d.Action = Skip
		d.Reasons = []string{fmt.Sprintf("already conformed (%s/%s/%s)", targetContainer, video.Codec, audio.Codec)}
	case d.Video.Passthrough:
		d.Action = Repack
	default:
		d.Action = Transcode
	}

	return d, nil
}

// planDownmixes finds multichannel streams lacking a stereo sibling in the
// same language. Streams with an existing <=2ch same-language pair need no
// companion track.
func planDownmixes(meta probe.Metadata, policy Policy) []Downmix {
	if !policy.StereoDownmix {
		return nil
	}
	var mixes []Downmix
	for _, stream := range meta.Audio {
		if stream.Channels <= 2 {
			continue
		}
		if hasStereoPair(meta.Audio, stream) {
			continue
		}
		mixes = append(mixes, Downmix{
			SourceIndex:    stream.Index,
			SourceChannels: stream.Channels,
			Language:       stream.Language,
			Bitrate:        policy.DownmixBitrate,
		})
	}
	return mixes
}

func hasStereoPair(streams []probe.AudioStream, target probe.AudioStream) bool {
	for _, other := range streams {
		if other.Index == target.Index {
			continue
		}
		if other.Channels > 0 && other.Channels <= 2 && other.Language == target.Language {
			return true
		}
	}
	return false
}

func videoAccepted(codec string, policy Policy) bool {
	codec = normalizeCodec(codec)
	for _, accepted := range policy.AcceptedVideoCodecs {
		if normalizeCodec(accepted) == codec {
			return true
		}
	}
	return false
}

// normalizeCodec folds the common aliases so config values and ffprobe output
// compare cleanly: h265 and hevc are the same codec, as are avc1 and h264.
func normalizeCodec(codec string) string {
	switch strings.ToLower(strings.TrimSpace(codec)) {
	case "h265", "hevc":
		return "hevc"
	case "avc1", "h264":
		return "h264"
	default:
		return strings.ToLower(strings.TrimSpace(codec))
	}
}

// normalizeContainer folds ffprobe's container family names onto the policy
// vocabulary: the mov/mp4 demuxer family is "mp4", matroska/webm is "matroska".
func normalizeContainer(container string) string {
	switch strings.ToLower(strings.TrimSpace(container)) {
	case "mov", "mp4", "m4v":
		return "mp4"
	case "matroska", "webm", "mkv":
		return "matroska"
	default:
		return strings.ToLower(strings.TrimSpace(container))
	}
}
