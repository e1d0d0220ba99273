package convert

import (
	"fmt"
	"strconv"
	"strings"

	"conform/internal/decide"
	"conform/internal/media/probe"
)

// BuildArgs constructs the complete ffmpeg argument slice for one decision.
// PASSTHROUGH streams get copy flags, everything else gets encode flags; the
// output is always written to tempPath.
func BuildArgs(meta probe.Metadata, dec decide.Decision, settings Settings, tempPath string) []string {
	args := make([]string, 0, 48)
	args = append(args, "-y", "-hide_banner", "-nostdin", "-loglevel", "error")

	if !dec.Video.Passthrough && dec.Video.NVENC {
		args = append(args, "-hwaccel", "cuda")
	}

	args = append(args, "-i", meta.Path)

	args = appendVideo(args, meta, dec, settings)
	args = appendAudio(args, meta, dec)
	args = appendSubtitles(args, meta, settings)

	// Data streams have no representation in mp4.
	args = append(args, "-dn")

	if containerFamily(settings.TargetContainer) == "mp4" {
		args = append(args, "-movflags", "+faststart")
	}

	return append(args, tempPath)
}

func appendVideo(args []string, meta probe.Metadata, dec decide.Decision, settings Settings) []string {
	if dec.Video.Passthrough {
		// REPACK retains every video stream losslessly.
		return append(args, "-map", "0:v", "-c:v", "copy")
	}

	args = append(args, "-map", "0:v:0", "-pix_fmt", "yuv420p")
	if dec.Video.NVENC {
		args = append(args,
			"-c:v", encoderName(dec.Video.Codec, true),
			"-preset", settings.NVENCPreset,
		)
	} else {
		args = append(args,
			"-c:v", encoderName(dec.Video.Codec, false),
			"-preset", settings.CPUPreset,
			"-threads", strconv.Itoa(settings.threadCap()),
		)
	}
	return append(args, "-b:v", bitrateFor(meta, settings))
}

func appendAudio(args []string, meta probe.Metadata, dec decide.Decision) []string {
	if dec.Audio.Passthrough {
		return append(args, "-map", "0:a", "-c:a", "copy")
	}

	mixesBySource := make(map[int][]decide.Downmix, len(dec.Audio.Downmixes))
	for _, mix := range dec.Audio.Downmixes {
		mixesBySource[mix.SourceIndex] = append(mixesBySource[mix.SourceIndex], mix)
	}

	out := 0
	for _, stream := range meta.Audio {
		args = append(args, "-map", fmt.Sprintf("0:%d", stream.Index))
		if strings.EqualFold(stream.Codec, dec.Audio.Codec) {
			args = append(args, fmt.Sprintf("-c:a:%d", out), "copy")
		} else {
			args = append(args,
				fmt.Sprintf("-c:a:%d", out), dec.Audio.Codec,
				fmt.Sprintf("-b:a:%d", out), dec.Audio.Bitrate,
			)
		}
		out++

		// Stereo companion tracks sit directly after their source stream.
		for _, mix := range mixesBySource[stream.Index] {
			args = append(args,
				"-map", fmt.Sprintf("0:%d", mix.SourceIndex),
				fmt.Sprintf("-c:a:%d", out), dec.Audio.Codec,
				fmt.Sprintf("-b:a:%d", out), mix.Bitrate,
				fmt.Sprintf("-ac:a:%d", out), "2",
				fmt.Sprintf("-metadata:s:a:%d", out), fmt.Sprintf("title=Stereo (Downmix from %dch)", mix.SourceChannels),
			)
			out++
		}
	}
	return args
}

func appendSubtitles(args []string, meta probe.Metadata, settings Settings) []string {
	if !settings.KeepSubtitles || !meta.HasSubtitles {
		return append(args, "-sn")
	}
	codec := "copy"
	if containerFamily(settings.TargetContainer) == "mp4" {
		codec = "mov_text"
	}
	return append(args, "-map", "0:s?", "-c:s", codec)
}

// bitrateFor picks the ladder rung from the primary video resolution.
func bitrateFor(meta probe.Metadata, settings Settings) string {
	video := meta.PrimaryVideo()
	if video == nil {
		return settings.Bitrate1080p
	}
	pixels := video.Width * video.Height
	switch {
	case pixels > 3000*1500:
		return settings.Bitrate2160p
	case pixels < 1500*900:
		return settings.Bitrate720p
	default:
		return settings.Bitrate1080p
	}
}

func encoderName(codec string, nvenc bool) string {
	switch strings.ToLower(codec) {
	case "hevc", "h265":
		if nvenc {
			return "hevc_nvenc"
		}
		return "libx265"
	default:
		if nvenc {
			return "h264_nvenc"
		}
		return "libx264"
	}
}

func containerFamily(container string) string {
	switch strings.ToLower(strings.TrimSpace(container)) {
	case "matroska", "mkv":
		return "matroska"
	default:
		return "mp4"
	}
}

func containerExt(container string) string {
	if containerFamily(container) == "matroska" {
		return ".mkv"
	}
	return ".mp4"
}
