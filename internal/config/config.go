package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Source describes where candidate files come from and how they are filtered.
type Source struct {
	Path             string   `toml:"path"`
	Extensions       []string `toml:"extensions"`
	SkipSmallFilesMB int64    `toml:"skip_small_files_mb"`
}

// Schedule controls pass cadence and worker concurrency.
type Schedule struct {
	Mode            string `toml:"mode"`
	IntervalSeconds int    `toml:"interval_seconds"`
	Workers         int    `toml:"workers"`
}

// Video contains the target container/codec policy and encoder settings.
type Video struct {
	TargetContainer string   `toml:"target_container"`
	AcceptedCodecs  []string `toml:"accepted_codecs"`
	TargetCodec     string   `toml:"target_codec"`
	NVENC           bool     `toml:"nvenc"`
	NVENCPreset     string   `toml:"nvenc_preset"`
	CPUPreset       string   `toml:"cpu_preset"`
	Bitrate720p     string   `toml:"bitrate_720p"`
	Bitrate1080p    string   `toml:"bitrate_1080p"`
	Bitrate2160p    string   `toml:"bitrate_2160p"`
}

// Audio contains the target audio codec policy.
type Audio struct {
	TargetCodec    string `toml:"target_codec"`
	Bitrate        string `toml:"bitrate"`
	StereoDownmix  bool   `toml:"stereo_downmix"`
	DownmixBitrate string `toml:"downmix_bitrate"`
}

// Convert contains settings for the external ffmpeg/ffprobe invocations.
type Convert struct {
	KeepSubtitles        bool   `toml:"keep_subtitles"`
	Threads              int    `toml:"threads"`
	ProbeTimeoutSeconds  int    `toml:"probe_timeout_seconds"`
	EncodeTimeoutSeconds int    `toml:"encode_timeout_seconds"`
	FFmpegBinary         string `toml:"ffmpeg_binary"`
	FFprobeBinary        string `toml:"ffprobe_binary"`
}

// ProbeCache configures the optional mtime/size-keyed probe result cache.
type ProbeCache struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Dir    string `toml:"dir"`
}

// Config encapsulates all configuration values for conform.
//
// Sections by subsystem:
//   - Source: library root, extension filter, minimum size
//   - Schedule: cron/continuous mode, pass interval, worker count
//   - Video: target container and video codec policy
//   - Audio: target audio codec policy and stereo downmix
//   - Convert: ffmpeg invocation knobs (threads, timeouts, binaries)
//   - ProbeCache: optional probe short-circuit cache
//   - Logging: log level, format, and directory
type Config struct {
	Source     Source     `toml:"source"`
	Schedule   Schedule   `toml:"schedule"`
	Video      Video      `toml:"video"`
	Audio      Audio      `toml:"audio"`
	Convert    Convert    `toml:"convert"`
	ProbeCache ProbeCache `toml:"probe_cache"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/conform/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized. The second return value is the
// resolved path, the third reports whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("conform.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Logging.Dir}
	if c.ProbeCache.Enabled && strings.TrimSpace(c.ProbeCache.Path) != "" {
		dirs = append(dirs, filepath.Dir(c.ProbeCache.Path))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable used for conversions.
func (c *Config) FFmpegBinary() string {
	if b := strings.TrimSpace(c.Convert.FFmpegBinary); b != "" {
		return b
	}
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable used for stream inspection.
func (c *Config) FFprobeBinary() string {
	if b := strings.TrimSpace(c.Convert.FFprobeBinary); b != "" {
		return b
	}
	return "ffprobe"
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Logging.Dir, "conformd.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
