package config

const (
	// ModeContinuous runs passes forever with an idle interval between them.
	ModeContinuous = "continuous"
	// ModeCron runs exactly one pass and exits.
	ModeCron = "cron"
)

const (
	defaultLogDir               = "~/.local/share/conform/logs"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultMode                 = ModeContinuous
	defaultIntervalSeconds      = 300
	defaultWorkers              = 1
	defaultSkipSmallFilesMB     = 50
	defaultTargetContainer      = "mp4"
	defaultVideoCodec           = "h264"
	defaultNVENCPreset          = "p5"
	defaultCPUPreset            = "veryfast"
	defaultBitrate720p          = "2500k"
	defaultBitrate1080p         = "5000k"
	defaultBitrate2160p         = "16000k"
	defaultAudioCodec           = "aac"
	defaultAudioBitrate         = "192k"
	defaultDownmixBitrate       = "192k"
	defaultProbeTimeoutSeconds  = 60
	defaultEncodeTimeoutSeconds = 4 * 3600
	defaultProbeCachePath       = "~/.cache/conform/probecache.db"
)

var (
	defaultExtensions     = []string{"mkv", "mp4", "avi", "mov", "m4v", "wmv", "ts", "mpg"}
	defaultAcceptedCodecs = []string{"h264", "h265"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Source: Source{
			Extensions:       append([]string(nil), defaultExtensions...),
			SkipSmallFilesMB: defaultSkipSmallFilesMB,
		},
		Schedule: Schedule{
			Mode:            defaultMode,
			IntervalSeconds: defaultIntervalSeconds,
			Workers:         defaultWorkers,
		},
		Video: Video{
			TargetContainer: defaultTargetContainer,
			AcceptedCodecs:  append([]string(nil), defaultAcceptedCodecs...),
			TargetCodec:     defaultVideoCodec,
			NVENCPreset:     defaultNVENCPreset,
			CPUPreset:       defaultCPUPreset,
			Bitrate720p:     defaultBitrate720p,
			Bitrate1080p:    defaultBitrate1080p,
			Bitrate2160p:    defaultBitrate2160p,
		},
		Audio: Audio{
			TargetCodec:    defaultAudioCodec,
			Bitrate:        defaultAudioBitrate,
			DownmixBitrate: defaultDownmixBitrate,
		},
		Convert: Convert{
			ProbeTimeoutSeconds:  defaultProbeTimeoutSeconds,
			EncodeTimeoutSeconds: defaultEncodeTimeoutSeconds,
		},
		ProbeCache: ProbeCache{
			Path: defaultProbeCachePath,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
			Dir:    defaultLogDir,
		},
	}
}
