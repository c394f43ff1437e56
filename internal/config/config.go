// Package config handles application configuration loading and management.
package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration.
type Config struct {
	App       App
	HTTP      HTTP
	Dir       Dir
	Media     Media
	Storage   Storage
	Toolchain Toolchain
	Proxy     Proxy
}

// App holds application-wide configuration.
type App struct {
	LogLevel string `env:"VIDGATE_APP_LOG_LEVEL"  envDefault:"info"`
	// LogFormat is "json" or "text".
	LogFormat string `env:"VIDGATE_APP_LOG_FORMAT" envDefault:"json"`
	// Engine selects the media engine: "ytdlp" or "mock" for local development.
	Engine string `env:"VIDGATE_APP_ENGINE" envDefault:"ytdlp"`
}

// HTTP holds HTTP server configuration.
type HTTP struct {
	Port            string        `env:"VIDGATE_HTTP_PORT"             envDefault:":8000"`
	ShutdownTimeout time.Duration `env:"VIDGATE_HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// InfoTimeout bounds a metadata lookup, DownloadTimeout a whole fetch.
	InfoTimeout     time.Duration `env:"VIDGATE_HTTP_INFO_TIMEOUT"     envDefault:"2m"`
	DownloadTimeout time.Duration `env:"VIDGATE_HTTP_DOWNLOAD_TIMEOUT" envDefault:"30m"`

	// "*" allows any origin. Credentialed requests get the origin echoed back.
	CORSOrigins []string `env:"VIDGATE_HTTP_CORS_ORIGINS" envDefault:"http://localhost:5173,http://localhost:3000" envSeparator:","` //nolint:lll

	// RateLimit is the number of /api requests per second, 0 disables limiting.
	RateLimit float64 `env:"VIDGATE_HTTP_RATE_LIMIT" envDefault:"0"`
	RateBurst int     `env:"VIDGATE_HTTP_RATE_BURST" envDefault:"5"`
}

// Dir holds directory paths for downloads, cache, and cookie file.
type Dir struct {
	Downloads string `env:"VIDGATE_DIR_DOWNLOAD" envDefault:"./downloads"` // transient files live here
	Cache     string `env:"VIDGATE_DIR_CACHE"    envDefault:"./data/cache"`

	// must contain cookies.txt file
	// see: https://github.com/yt-dlp/yt-dlp/wiki/FAQ#how-do-i-pass-cookies-to-yt-dlp
	CookieFile string `env:"VIDGATE_DIR_COOKIE_FILE" envDefault:""`
}

// SetAbsPaths converts all directory paths to absolute paths.
func (c *Dir) SetAbsPaths() error {
	var err error
	if c.Downloads, err = filepath.Abs(c.Downloads); err != nil {
		return fmt.Errorf("downloads: %w", err)
	}

	if c.Cache, err = filepath.Abs(c.Cache); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	if c.CookieFile != "" {
		if c.CookieFile, err = filepath.Abs(c.CookieFile); err != nil {
			return fmt.Errorf("cookie file: %w", err)
		}
	}

	return nil
}

// Media holds format selection and post-processing configuration.
type Media struct {
	// DefaultFormat is used when a download request carries no format.
	// see: https://github.com/yt-dlp/yt-dlp#format-selection
	DefaultFormat string `env:"VIDGATE_MEDIA_DEFAULT_FORMAT" envDefault:"bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"` //nolint:lll

	// AudioSentinels are format values that switch a download to audio-only mode.
	AudioSentinels []string `env:"VIDGATE_MEDIA_AUDIO_SENTINELS" envDefault:"audio,251" envSeparator:","`

	AudioCodec     string `env:"VIDGATE_MEDIA_AUDIO_CODEC"     envDefault:"mp3"`
	AudioQuality   string `env:"VIDGATE_MEDIA_AUDIO_QUALITY"   envDefault:"192K"`
	VideoContainer string `env:"VIDGATE_MEDIA_VIDEO_CONTAINER" envDefault:"mp4"`
}

// IsAudioSentinel reports whether format selects audio-only mode.
func (m Media) IsAudioSentinel(format string) bool {
	return format != "" && slices.Contains(m.AudioSentinels, format)
}

// Storage holds storage configuration.
type Storage struct {
	// OrphanTTL is the age after which a leftover workspace is reaped.
	OrphanTTL time.Duration `env:"VIDGATE_STORAGE_ORPHAN_TTL"    envDefault:"6h"`
	// ReapInterval is how often orphans are looked for, 0 disables the reaper.
	ReapInterval time.Duration `env:"VIDGATE_STORAGE_REAP_INTERVAL" envDefault:"30m"`
}

// Toolchain holds binary dependency management configuration.
type Toolchain struct {
	// BinsDir is the directory where downloaded binaries are stored.
	BinsDir string `env:"VIDGATE_TOOLCHAIN_BINS_DIR" envDefault:"./bins"`
	// UseSystemBinaries looks yt-dlp and ffmpeg up in PATH instead of downloading them.
	UseSystemBinaries bool `env:"VIDGATE_TOOLCHAIN_USE_SYSTEM_BINARIES" envDefault:"true"`

	YTdlpLinuxARM64  string `env:"VIDGATE_TOOLCHAIN_YTDLP_LINUX_ARM64"  envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_linux_aarch64"`                            //nolint:lll
	YTdlpLinuxAMD64  string `env:"VIDGATE_TOOLCHAIN_YTDLP_LINUX_AMD64"  envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_linux"`                                    //nolint:lll
	FFmpegLinuxARM64 string `env:"VIDGATE_TOOLCHAIN_FFMPEG_LINUX_ARM64" envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/ffmpeg-master-latest-linuxarm64-gpl.tar.xz"` //nolint:lll
	FFmpegLinuxAMD64 string `env:"VIDGATE_TOOLCHAIN_FFMPEG_LINUX_AMD64" envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/ffmpeg-master-latest-linux64-gpl.tar.xz"`    //nolint:lll
}

// SetAbsPaths converts the BinsDir path to an absolute path.
func (t *Toolchain) SetAbsPaths() error {
	var err error
	if t.BinsDir, err = filepath.Abs(t.BinsDir); err != nil {
		return fmt.Errorf("bins dir: %w", err)
	}

	return nil
}

// Proxy holds proxy configuration for engine requests.
type Proxy struct {
	// List is a comma-separated list of proxy URLs, e.g. socks5h://127.0.0.1:1080
	List string `env:"VIDGATE_PROXY_LIST" envDefault:""`
	// HealthCheck dials a proxy before handing it out.
	HealthCheck   bool          `env:"VIDGATE_PROXY_HEALTH_CHECK"   envDefault:"false"`
	HealthTimeout time.Duration `env:"VIDGATE_PROXY_HEALTH_TIMEOUT" envDefault:"5s"`
	// FailureBackoff is the initial backoff duration for failed proxies
	FailureBackoff time.Duration `env:"VIDGATE_PROXY_FAILURE_BACKOFF" envDefault:"1m"`
	// MaxFailures is the number of failures before a proxy is put in backoff
	MaxFailures int `env:"VIDGATE_PROXY_MAX_FAILURES" envDefault:"3"`

	// Proxies is the parsed list of proxy URLs
	Proxies []string `env:"-"`
}

// parseList parses the comma-separated proxy list.
func (p *Proxy) parseList() {
	p.Proxies = nil

	if p.List == "" {
		return
	}

	for proxy := range strings.SplitSeq(p.List, ",") {
		proxy = strings.TrimSpace(proxy)
		if proxy != "" {
			p.Proxies = append(p.Proxies, proxy)
		}
	}
}

// New loads configuration from environment variables.
func New() (*Config, error) {
	cfg := &Config{}

	err := env.Parse(cfg)
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	err = cfg.Dir.SetAbsPaths()
	if err != nil {
		return nil, fmt.Errorf("set absolute paths: %w", err)
	}

	err = cfg.Toolchain.SetAbsPaths()
	if err != nil {
		return nil, fmt.Errorf("set toolchain absolute paths: %w", err)
	}

	cfg.Proxy.parseList()

	return cfg, nil
}
