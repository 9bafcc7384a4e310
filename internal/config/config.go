package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed retrieval.yaml
var defaultsYAML []byte

type Config struct {
	Dataset   DatasetConfig
	Database  DatabaseConfig
	Graph     GraphConfig
	Detector  DetectorConfig
	OpenAI    OpenAIConfig
	Gemini    GeminiConfig
	Retrieval RetrievalConfig
	Similar   SimilarConfig
	Web       WebConfig
}

type DatasetConfig struct {
	Dir         string // defaults to static/Bovw
	Exclusions  string // file names are resolved inside Dir unless absolute
	Frequencies string
	Histograms  string
	PhotosDir   string // served under /static/Photos/ (optional)
}

// Path resolves a dataset file name against Dir.
func (c *DatasetConfig) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Dir, name)
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type GraphConfig struct {
	Backend    string // postgres, mariadb or badger (default postgres)
	MariaDBURL string // MariaDB DSN (e.g., user:pass@tcp(mariadb:3306)/images)
	BadgerPath string // Badger data directory
}

type DetectorConfig struct {
	Provider      string  // http, openai or gemini (default http)
	URL           string  // defaults to http://localhost:8000
	MinConfidence float64 // detections below are ignored (default 0)
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type RetrievalConfig struct {
	Bins             int           `yaml:"bins"`
	MinCandidates    int           `yaml:"min_candidates"`
	Relaxation       bool          `yaml:"relaxation"`
	RelaxationTarget int           `yaml:"relaxation_target"`
	Workers          int           `yaml:"workers"`
	DetectTimeout    time.Duration `yaml:"detect_timeout"`
	StoreTimeout     time.Duration `yaml:"store_timeout"`
	MaxResults       int           `yaml:"max_results"`
}

type SimilarConfig struct {
	Backend       string // hnsw or postgres (default hnsw)
	HNSWIndexPath string // Path to persist the histogram HNSW index (optional, if empty index is rebuilt on startup)
}

type WebConfig struct {
	AllowedOrigins string // comma-separated CORS whitelist
}

type fileConfig struct {
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envBool reads a boolean environment variable (1/0, true/false, yes/no).
func envBool(key string, defaultVal bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultVal
	}
}

// envDuration reads a positive Go duration (e.g. "30s").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envFloat reads a non-negative float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func loadRetrieval() (RetrievalConfig, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(defaultsYAML, &fc); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded retrieval.yaml: " + err.Error())
	}

	if path := os.Getenv("IMAGE_QUERY_CONFIG"); path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
		if err != nil {
			return RetrievalConfig{}, fmt.Errorf("read config file: %w", err)
		}
		// Keys missing from the file keep their built-in values.
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return RetrievalConfig{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	r := fc.Retrieval
	r.Bins = envInt("RETRIEVAL_BINS", r.Bins)
	r.MinCandidates = envInt("RETRIEVAL_MIN_CANDIDATES", r.MinCandidates)
	r.Relaxation = envBool("RETRIEVAL_RELAXATION", r.Relaxation)
	r.RelaxationTarget = envInt("RETRIEVAL_RELAXATION_TARGET", r.RelaxationTarget)
	r.Workers = envInt("RETRIEVAL_WORKERS", r.Workers)
	r.DetectTimeout = envDuration("RETRIEVAL_DETECT_TIMEOUT", r.DetectTimeout)
	r.StoreTimeout = envDuration("RETRIEVAL_STORE_TIMEOUT", r.StoreTimeout)
	r.MaxResults = envInt("RETRIEVAL_MAX_RESULTS", r.MaxResults)
	return r, nil
}

// Load builds the configuration from built-in defaults, the optional
// IMAGE_QUERY_CONFIG file and environment variables, in that order.
func Load() (*Config, error) {
	retrieval, err := loadRetrieval()
	if err != nil {
		return nil, err
	}

	return &Config{
		Dataset: DatasetConfig{
			Dir:         envString("DATASET_DIR", "static/Bovw"),
			Exclusions:  envString("DATASET_EXCLUSIONS", "class_with_none_objs.json"),
			Frequencies: envString("DATASET_FREQUENCIES", "class_frequencies.json"),
			Histograms:  envString("DATASET_HISTOGRAMS", "img_hist.json"),
			PhotosDir:   os.Getenv("PHOTOS_DIR"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Graph: GraphConfig{
			Backend:    strings.ToLower(envString("GRAPH_BACKEND", "postgres")),
			MariaDBURL: os.Getenv("MARIADB_URL"),
			BadgerPath: envString("BADGER_PATH", "data/graph"),
		},
		Detector: DetectorConfig{
			Provider:      strings.ToLower(envString("DETECTOR_PROVIDER", "http")),
			URL:           os.Getenv("DETECTOR_URL"),
			MinConfidence: envFloat("DETECTOR_MIN_CONFIDENCE", 0),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Retrieval: retrieval,
		Similar: SimilarConfig{
			Backend:       strings.ToLower(envString("SIMILAR_BACKEND", "hnsw")),
			HNSWIndexPath: os.Getenv("HNSW_HISTOGRAM_INDEX_PATH"),
		},
		Web: WebConfig{
			AllowedOrigins: os.Getenv("WEB_ALLOWED_ORIGINS"),
		},
	}, nil
}
