package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeSource(); err != nil {
		return err
	}
	c.normalizeSchedule()
	c.normalizeVideo()
	c.normalizeAudio()
	c.normalizeConvert()
	if err := c.normalizeProbeCache(); err != nil {
		return err
	}
	return c.normalizeLogging()
}

func (c *Config) normalizeSource() error {
	var err error
	c.Source.Path = strings.TrimSpace(c.Source.Path)
	if c.Source.Path != "" {
		if c.Source.Path, err = expandPath(c.Source.Path); err != nil {
			return fmt.Errorf("source.path: %w", err)
		}
	}

	exts := make([]string, 0, len(c.Source.Extensions))
	for _, ext := range c.Source.Extensions {
		cleaned := strings.ToLower(strings.TrimSpace(ext))
		cleaned = strings.TrimPrefix(cleaned, ".")
		if cleaned == "" {
			continue
		}
		exts = append(exts, cleaned)
	}
	if len(exts) == 0 {
		exts = append(exts, defaultExtensions...)
	}
	c.Source.Extensions = exts
	return nil
}

func (c *Config) normalizeSchedule() {
	c.Schedule.Mode = strings.ToLower(strings.TrimSpace(c.Schedule.Mode))
	if c.Schedule.Mode == "" {
		c.Schedule.Mode = defaultMode
	}
	if c.Schedule.IntervalSeconds <= 0 {
		c.Schedule.IntervalSeconds = defaultIntervalSeconds
	}
	if c.Schedule.Workers <= 0 {
		c.Schedule.Workers = defaultWorkers
	}
}

func (c *Config) normalizeVideo() {
	c.Video.TargetContainer = strings.ToLower(strings.TrimSpace(c.Video.TargetContainer))
	if c.Video.TargetContainer == "" {
		c.Video.TargetContainer = defaultTargetContainer
	}
	if c.Video.TargetContainer == "mkv" {
		c.Video.TargetContainer = "matroska"
	}
	c.Video.TargetCodec = strings.ToLower(strings.TrimSpace(c.Video.TargetCodec))
	if c.Video.TargetCodec == "" {
		c.Video.TargetCodec = defaultVideoCodec
	}

	codecs := make([]string, 0, len(c.Video.AcceptedCodecs))
	for _, codec := range c.Video.AcceptedCodecs {
		cleaned := strings.ToLower(strings.TrimSpace(codec))
		if cleaned == "" {
			continue
		}
		codecs = append(codecs, cleaned)
	}
	if len(codecs) == 0 {
		codecs = append(codecs, defaultAcceptedCodecs...)
	}
	c.Video.AcceptedCodecs = codecs

	if strings.TrimSpace(c.Video.NVENCPreset) == "" {
		c.Video.NVENCPreset = defaultNVENCPreset
	}
	if strings.TrimSpace(c.Video.CPUPreset) == "" {
		c.Video.CPUPreset = defaultCPUPreset
	}
	if strings.TrimSpace(c.Video.Bitrate720p) == "" {
		c.Video.Bitrate720p = defaultBitrate720p
	}
	if strings.TrimSpace(c.Video.Bitrate1080p) == "" {
		c.Video.Bitrate1080p = defaultBitrate1080p
	}
	if strings.TrimSpace(c.Video.Bitrate2160p) == "" {
		c.Video.Bitrate2160p = defaultBitrate2160p
	}
}

func (c *Config) normalizeAudio() {
	c.Audio.TargetCodec = strings.ToLower(strings.TrimSpace(c.Audio.TargetCodec))
	if c.Audio.TargetCodec == "" {
		c.Audio.TargetCodec = defaultAudioCodec
	}
	if strings.TrimSpace(c.Audio.Bitrate) == "" {
		c.Audio.Bitrate = defaultAudioBitrate
	}
	if strings.TrimSpace(c.Audio.DownmixBitrate) == "" {
		c.Audio.DownmixBitrate = defaultDownmixBitrate
	}
}

func (c *Config) normalizeConvert() {
	if c.Convert.ProbeTimeoutSeconds <= 0 {
		c.Convert.ProbeTimeoutSeconds = defaultProbeTimeoutSeconds
	}
	if c.Convert.EncodeTimeoutSeconds <= 0 {
		c.Convert.EncodeTimeoutSeconds = defaultEncodeTimeoutSeconds
	}
	if c.Convert.Threads < 0 {
		c.Convert.Threads = 0
	}
}

func (c *Config) normalizeProbeCache() error {
	if strings.TrimSpace(c.ProbeCache.Path) == "" {
		c.ProbeCache.Path = defaultProbeCachePath
	}
	var err error
	if c.ProbeCache.Path, err = expandPath(c.ProbeCache.Path); err != nil {
		return fmt.Errorf("probe_cache.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() error {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	var err error
	if c.Logging.Dir, err = expandPath(defaultString(c.Logging.Dir, defaultLogDir)); err != nil {
		return fmt.Errorf("logging.dir: %w", err)
	}
	return nil
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
