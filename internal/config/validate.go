package config

import (
	"errors"
	"fmt"
	"strings"
)

var knownVideoCodecs = map[string]struct{}{
	"h264": {},
	"h265": {},
	"hevc": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateVideo(); err != nil {
		return err
	}
	if err := c.validateAudio(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateSource() error {
	if c.Source.Path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/conform/config.toml"
		}
		return fmt.Errorf("source.path is required. Edit %s (create with 'conform config init')", defaultPath)
	}
	if c.Source.SkipSmallFilesMB < 0 {
		return errors.New("source.skip_small_files_mb must not be negative")
	}
	return nil
}

func (c *Config) validateSchedule() error {
	switch c.Schedule.Mode {
	case ModeContinuous, ModeCron:
	default:
		return fmt.Errorf("schedule.mode must be %q or %q, got %q", ModeContinuous, ModeCron, c.Schedule.Mode)
	}
	if c.Schedule.Workers < 1 {
		return errors.New("schedule.workers must be at least 1")
	}
	if c.Schedule.IntervalSeconds < 1 {
		return errors.New("schedule.interval_seconds must be at least 1")
	}
	return nil
}

func (c *Config) validateVideo() error {
	if c.Video.TargetContainer != "mp4" && c.Video.TargetContainer != "matroska" {
		return fmt.Errorf("video.target_container must be mp4 or matroska, got %q", c.Video.TargetContainer)
	}
	if _, ok := knownVideoCodecs[c.Video.TargetCodec]; !ok {
		return fmt.Errorf("video.target_codec %q is not supported", c.Video.TargetCodec)
	}
	return nil
}

func (c *Config) validateAudio() error {
	if strings.TrimSpace(c.Audio.TargetCodec) == "" {
		return errors.New("audio.target_codec must be set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
