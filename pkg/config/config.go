package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cuemby/burrow/pkg/types"
)

// Config holds all daemon settings. Values come from the environment (or an
// optional .env-style file loaded by viper) with the defaults below.
type Config struct {
	// API settings
	Port      int
	APIPrefix string
	// APIKey is the shared secret for the adapter surface (X-Api-Key).
	APIKey string

	// Logging
	LogLevel     string
	LogSerialize bool

	// HostPath qualifies relative paths for bind mounts; the upload root
	// handed to dockerd must be absolute.
	HostPath           string
	HostConfigPath     string
	HostFileUploadPath string

	// Sandbox settings
	SandboxMaxExecutionTime time.Duration

	// File management
	FileMaxUploadSize     int64
	FileAllowedExtensions map[string]struct{}

	// Cleanup settings
	CleanupRunInterval time.Duration
	CleanupFileMaxAge  time.Duration

	// Container images per language
	PyContainerImage string
	RContainerImage  string

	// Docker execution settings
	MaxConcurrentContainers int
	ContainerMemoryLimitMB  int64
	ContainerCPULimit       float64
	DockerNetworkEnabled    bool
}

var defaultAllowedExtensions = []string{
	"py", "c", "cpp", "java", "php", "rb", "js", "ts",
	"txt", "md", "html", "css", "tex", "json", "csv", "xml",
	"docx", "xlsx", "pptx", "pdf",
	"ipynb", "yml", "yaml",
	"zip", "tar",
	"jpg", "jpeg", "png", "gif",
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", 8000)
	v.SetDefault("API_PREFIX", "/v1")
	v.SetDefault("API_KEY", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_SERIALIZE", false)
	v.SetDefault("HOST_PATH", ".")
	v.SetDefault("HOST_CONFIG_PATH", "config")
	v.SetDefault("HOST_FILE_UPLOAD_PATH", "uploads")
	v.SetDefault("SANDBOX_MAX_EXECUTION_TIME", 300)
	v.SetDefault("FILE_MAX_UPLOAD_SIZE", 10*1024*1024)
	v.SetDefault("FILE_ALLOWED_EXTENSIONS", strings.Join(defaultAllowedExtensions, ","))
	v.SetDefault("CLEANUP_RUN_INTERVAL", 3600)
	v.SetDefault("CLEANUP_FILE_MAX_AGE", 86400)
	v.SetDefault("PY_CONTAINER_IMAGE", "jupyter/scipy-notebook:latest")
	v.SetDefault("R_CONTAINER_IMAGE", "jupyter/r-notebook:latest")
	v.SetDefault("MAX_CONCURRENT_CONTAINERS", 10)
	v.SetDefault("CONTAINER_MEMORY_LIMIT_MB", 512)
	v.SetDefault("CONTAINER_CPU_LIMIT", 1.0)
	v.SetDefault("DOCKER_NETWORK_ENABLED", false)

	cfg := &Config{
		Port:                    v.GetInt("PORT"),
		APIPrefix:               v.GetString("API_PREFIX"),
		APIKey:                  v.GetString("API_KEY"),
		LogLevel:                v.GetString("LOG_LEVEL"),
		LogSerialize:            v.GetBool("LOG_SERIALIZE"),
		HostPath:                v.GetString("HOST_PATH"),
		HostConfigPath:          v.GetString("HOST_CONFIG_PATH"),
		HostFileUploadPath:      v.GetString("HOST_FILE_UPLOAD_PATH"),
		SandboxMaxExecutionTime: time.Duration(v.GetInt("SANDBOX_MAX_EXECUTION_TIME")) * time.Second,
		FileMaxUploadSize:       v.GetInt64("FILE_MAX_UPLOAD_SIZE"),
		CleanupRunInterval:      time.Duration(v.GetInt("CLEANUP_RUN_INTERVAL")) * time.Second,
		CleanupFileMaxAge:       time.Duration(v.GetInt("CLEANUP_FILE_MAX_AGE")) * time.Second,
		PyContainerImage:        v.GetString("PY_CONTAINER_IMAGE"),
		RContainerImage:         v.GetString("R_CONTAINER_IMAGE"),
		MaxConcurrentContainers: v.GetInt("MAX_CONCURRENT_CONTAINERS"),
		ContainerMemoryLimitMB:  v.GetInt64("CONTAINER_MEMORY_LIMIT_MB"),
		ContainerCPULimit:       v.GetFloat64("CONTAINER_CPU_LIMIT"),
		DockerNetworkEnabled:    v.GetBool("DOCKER_NETWORK_ENABLED"),
	}

	cfg.FileAllowedExtensions = make(map[string]struct{})
	for _, ext := range strings.Split(v.GetString("FILE_ALLOWED_EXTENSIONS"), ",") {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" {
			cfg.FileAllowedExtensions[ext] = struct{}{}
		}
	}

	if cfg.MaxConcurrentContainers < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_CONTAINERS must be at least 1, got %d", cfg.MaxConcurrentContainers)
	}
	if cfg.ContainerCPULimit <= 0 {
		return nil, fmt.Errorf("CONTAINER_CPU_LIMIT must be positive, got %v", cfg.ContainerCPULimit)
	}

	return cfg, nil
}

// ConfigPathAbs returns the absolute configuration directory (database
// location).
func (c *Config) ConfigPathAbs() string {
	return c.resolve(c.HostConfigPath)
}

// UploadPathAbs returns the absolute upload root. Session directories live
// directly under it; dockerd requires the bind source to be absolute.
func (c *Config) UploadPathAbs() string {
	return c.resolve(c.HostFileUploadPath)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	abs, err := filepath.Abs(filepath.Join(c.HostPath, p))
	if err != nil {
		return filepath.Join(c.HostPath, p)
	}
	return abs
}

// ImageFor maps a language to its configured container image.
func (c *Config) ImageFor(lang types.Language) string {
	switch lang {
	case types.LanguagePython:
		return c.PyContainerImage
	case types.LanguageR:
		return c.RContainerImage
	default:
		return ""
	}
}

// VersionFor derives the reported interpreter version from the configured
// image. The host interpreter is irrelevant to what runs in the container.
func (c *Config) VersionFor(lang types.Language) string {
	switch lang {
	case types.LanguagePython:
		return fmt.Sprintf("Python 3 (%s)", c.PyContainerImage)
	case types.LanguageR:
		return fmt.Sprintf("R (%s)", c.RContainerImage)
	default:
		return "unknown"
	}
}

// ExtensionAllowed reports whether the upload whitelist admits the
// extension (without leading dot, case-insensitive).
func (c *Config) ExtensionAllowed(ext string) bool {
	_, ok := c.FileAllowedExtensions[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return ok
}
