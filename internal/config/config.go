package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/aggregate"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/columns"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/region"
)

// ConfigFileEnv names the env variable holding the YAML config path.
const ConfigFileEnv = "ETL_CONFIG_FILE"

// Region scopes.
const (
	ScopeArea    = "area"
	ScopeCouncil = "council"
)

// Config holds all pipeline configuration
type Config struct {
	Years     []int           `yaml:"years"`
	Sources   map[int]string  `yaml:"sources"`
	Region    RegionConfig    `yaml:"region"`
	Lookup    LookupConfig    `yaml:"lookup"`
	Source    SourceConfig    `yaml:"source"`
	Columns   columns.Rules   `yaml:"columns"`
	Output    OutputConfig    `yaml:"output"`
	Aggregate AggregateConfig `yaml:"aggregate"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Force     bool            `yaml:"force"`
}

// RegionConfig selects the region set and how postcodes map onto it
type RegionConfig struct {
	// Scope is "area" (postcode areas) or "council" (council areas via the lookup).
	Scope string `yaml:"scope"`
	// Strategy is "prefix" or "digit-strip" for the area scope.
	Strategy string   `yaml:"strategy"`
	Targets  []string `yaml:"targets"`
	Markers  []string `yaml:"markers"`
	// Label prefixes the per-year clean files.
	Label string `yaml:"label"`
}

// LookupConfig locates the postcode lookup used by the council scope
type LookupConfig struct {
	Path    string               `yaml:"path"`
	URL     string               `yaml:"url"`
	Columns region.LookupColumns `yaml:"columns"`
}

// SourceConfig tunes how yearly sources are read
type SourceConfig struct {
	ChunkSize       int           `yaml:"chunk_size"`
	HeaderTimeout   time.Duration `yaml:"header_timeout"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxElapsed      time.Duration `yaml:"max_elapsed"`
	UserAgent       string        `yaml:"user_agent"`
}

// OutputConfig holds artifact locations
type OutputConfig struct {
	CleanDir string `yaml:"clean_dir"`
	Dir      string `yaml:"dir"`
	XLSX     bool   `yaml:"xlsx"`
	PDF      bool   `yaml:"pdf"`
}

// AggregateConfig holds the consolidation options
type AggregateConfig struct {
	Measure    string             `yaml:"measure"`
	ByDataZone bool               `yaml:"by_data_zone"`
	Rankings   []aggregate.Window `yaml:"rankings"`
	Groups     []GroupConfig      `yaml:"groups"`
}

// GroupConfig is a named set of region codes or names averaged together
type GroupConfig struct {
	Name    string   `yaml:"name"`
	Members []string `yaml:"members"`
}

// LogConfig holds logger options
type LogConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

// MetricsConfig holds metrics options
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// InfluxDBConfig holds InfluxDB-related configuration
type InfluxDBConfig struct {
	Enabled     bool          `yaml:"enabled"`
	URL         string        `yaml:"url"`
	Org         string        `yaml:"org"`
	Token       string        `yaml:"token"`
	Bucket      string        `yaml:"bucket"`
	Measurement string        `yaml:"measurement"`
	Timeout     time.Duration `yaml:"timeout"`
}

// KafkaConfig holds Kafka-related configuration
type KafkaConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"client_id"`
}

// PostgresConfig holds Postgres-related configuration
type PostgresConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
	Table   string `yaml:"table"`
}

var defaultSources = map[int]string{
	2015: "https://assets.publishing.service.gov.uk/media/6762e8dbe6ff7c8a1fde9b2c/Postcode_level_all_meters_electricity_2015.csv",
	2016: "https://assets.publishing.service.gov.uk/media/6762e9b2e6ff7c8a1fde9b30/Postcode_level_all_meters_electricity_2016.csv",
	2017: "https://assets.publishing.service.gov.uk/media/6762ea7bbe7b2c675de307c9/Postcode_level_all_meters_electricity_2017.csv",
	2018: "https://assets.publishing.service.gov.uk/media/6762eb504e2d5e9c0bde9b26/Postcode_level_all_meters_electricity_2018.csv",
	2019: "https://assets.publishing.service.gov.uk/media/6762ec0c4e2d5e9c0bde9b2a/Postcode_level_all_meters_electricity_2019.csv",
	2020: "https://assets.publishing.service.gov.uk/media/6762f10dff2c870561bde823/Postcode_level_all_meters_electricity_2020.csv",
	2021: "https://assets.publishing.service.gov.uk/media/6762f20f3229e84d9bbde81f/Postcode_level_all_meters_electricity_2021.csv",
	2022: "https://assets.publishing.service.gov.uk/media/6762f29ecdb5e64b69e307db/Postcode_level_all_meters_electricity_2022.csv",
	2023: "https://assets.publishing.service.gov.uk/media/6762f39cff2c870561bde826/Postcode_level_all_meters_electricity_2023.csv",
}

// Default returns the built-in configuration: Scottish postcode areas for
// 2015 to 2023 read from the published gov.uk files.
func Default() *Config {
	sources := make(map[int]string, len(defaultSources))
	years := make([]int, 0, len(defaultSources))
	for y := 2015; y <= 2023; y++ {
		sources[y] = defaultSources[y]
		years = append(years, y)
	}

	return &Config{
		Years:   years,
		Sources: sources,
		Region: RegionConfig{
			Scope:    ScopeArea,
			Strategy: region.StrategyPrefix,
			Markers:  region.DefaultMarkers,
			Label:    "electricity_scotland",
		},
		Lookup: LookupConfig{
			Path: filepath.Join("data", "SmallUser.csv"),
			URL:  "https://www.nrscotland.gov.uk/media/3zjlgpt3/sspl_2025_1.zip",
			Columns: region.LookupColumns{
				Postcode: "Postcode",
				Council:  "CouncilArea2019Code",
				DataZone: "DataZone2022Code",
			},
		},
		Source: SourceConfig{
			ChunkSize:       100000,
			HeaderTimeout:   30 * time.Second,
			InitialInterval: 500 * time.Millisecond,
			MaxElapsed:      2 * time.Minute,
			UserAgent:       "smart-grid-postcode-etl",
		},
		Columns: columns.DefaultRules(),
		Output: OutputConfig{
			CleanDir: filepath.Join("data", "clean"),
			Dir:      "output",
		},
		Aggregate: AggregateConfig{
			Measure:  string(aggregate.MeasureMean),
			Rankings: aggregate.DefaultWindows(),
			Groups: []GroupConfig{
				{Name: "cities", Members: []string{"Glasgow City", "City of Edinburgh", "Aberdeen City", "Dundee City"}},
				{Name: "islands", Members: []string{"Orkney Islands", "Shetland Islands", "Na h-Eileanan Siar"}},
			},
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "json",
		},
		InfluxDB: InfluxDBConfig{
			URL:         "http://localhost:8086",
			Org:         "Solo",
			Bucket:      "smart-grid-postcode",
			Measurement: "electricity_consumption",
			Timeout:     10 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:  []string{"localhost:9092"},
			Topic:    "postcode-consumption-aggregates",
			ClientID: "smart-grid-postcode-etl",
		},
		Postgres: PostgresConfig{
			Table: "region_year_consumption",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (or ETL_CONFIG_FILE when path is empty), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read file: %w", err)
	}
	// Sequences in the file replace the defaults; sources merge by year.
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if value, exists := os.LookupEnv("ETL_YEARS"); exists {
		years, err := parseYears(value)
		if err != nil {
			return fmt.Errorf("config: ETL_YEARS: %w", err)
		}
		c.Years = years
	}
	if c.Sources == nil {
		c.Sources = make(map[int]string)
	}
	for _, y := range c.Years {
		c.Sources[y] = getEnv(fmt.Sprintf("ETL_SOURCE_%d", y), c.Sources[y])
	}

	c.Region.Scope = getEnv("ETL_REGION_SCOPE", c.Region.Scope)
	c.Region.Strategy = getEnv("ETL_REGION_STRATEGY", c.Region.Strategy)
	c.Region.Targets = getEnvStringSlice("ETL_REGION_TARGETS", c.Region.Targets)
	c.Region.Label = getEnv("ETL_REGION_LABEL", c.Region.Label)

	c.Lookup.Path = getEnv("ETL_LOOKUP_PATH", c.Lookup.Path)
	c.Lookup.URL = getEnv("ETL_LOOKUP_URL", c.Lookup.URL)

	c.Source.ChunkSize = getEnvInt("ETL_SOURCE_CHUNK_SIZE", c.Source.ChunkSize)
	c.Source.MaxElapsed = getEnvDuration("ETL_SOURCE_MAX_ELAPSED", c.Source.MaxElapsed)

	c.Output.CleanDir = getEnv("ETL_CLEAN_DIR", c.Output.CleanDir)
	c.Output.Dir = getEnv("ETL_OUTPUT_DIR", c.Output.Dir)
	c.Output.XLSX = getEnvBool("ETL_OUTPUT_XLSX", c.Output.XLSX)
	c.Output.PDF = getEnvBool("ETL_OUTPUT_PDF", c.Output.PDF)

	c.Aggregate.Measure = getEnv("ETL_AGGREGATE_MEASURE", c.Aggregate.Measure)
	c.Aggregate.ByDataZone = getEnvBool("ETL_AGGREGATE_BY_DATA_ZONE", c.Aggregate.ByDataZone)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Encoding = getEnv("ETL_LOG_ENCODING", c.Log.Encoding)
	c.Metrics.Textfile = getEnv("ETL_METRICS_TEXTFILE", c.Metrics.Textfile)

	c.InfluxDB.Enabled = getEnvBool("INFLUXDB_ENABLED", c.InfluxDB.Enabled)
	c.InfluxDB.URL = getEnv("INFLUXDB_URL", c.InfluxDB.URL)
	c.InfluxDB.Org = getEnv("INFLUXDB_ORG", c.InfluxDB.Org)
	c.InfluxDB.Token = getEnv("INFLUX_TOKEN", c.InfluxDB.Token)
	c.InfluxDB.Bucket = getEnv("INFLUXDB_BUCKET", c.InfluxDB.Bucket)

	c.Kafka.Enabled = getEnvBool("KAFKA_ENABLED", c.Kafka.Enabled)
	c.Kafka.Brokers = getEnvStringSlice("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Kafka.Topic)

	c.Postgres.Enabled = getEnvBool("PG_ENABLED", c.Postgres.Enabled)
	c.Postgres.DSN = getEnv("PG_DSN", c.Postgres.DSN)

	c.Force = getEnvBool("ETL_FORCE", c.Force)
	return nil
}

func parseYears(value string) ([]int, error) {
	var years []int
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if first, last, ok := strings.Cut(part, "-"); ok {
			from, err := strconv.Atoi(strings.TrimSpace(first))
			if err != nil {
				return nil, err
			}
			to, err := strconv.Atoi(strings.TrimSpace(last))
			if err != nil {
				return nil, err
			}
			for y := from; y <= to; y++ {
				years = append(years, y)
			}
			continue
		}
		y, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var problems []string

	if len(c.Years) == 0 {
		problems = append(problems, "years must not be empty")
	}
	seen := make(map[int]bool)
	for _, y := range c.Years {
		if seen[y] {
			problems = append(problems, fmt.Sprintf("year %d listed twice", y))
		}
		seen[y] = true
		if strings.TrimSpace(c.Sources[y]) == "" {
			problems = append(problems, fmt.Sprintf("no source configured for year %d", y))
		}
	}

	switch c.Region.Scope {
	case ScopeArea:
		if _, err := region.NewAreaStrategy(c.Region.Strategy, region.ScottishAreas()); err != nil {
			problems = append(problems, err.Error())
		}
		if c.Aggregate.ByDataZone {
			problems = append(problems, "aggregate.by_data_zone requires region.scope council")
		}
	case ScopeCouncil:
		if c.Lookup.Path == "" {
			problems = append(problems, "lookup.path is required for region.scope council")
		}
	default:
		problems = append(problems, fmt.Sprintf("region.scope must be %q or %q", ScopeArea, ScopeCouncil))
	}
	if set, ok := c.RegionSet(); ok {
		if _, unknown := set.Subset(c.Region.Targets); len(unknown) > 0 {
			problems = append(problems, fmt.Sprintf("unknown region targets %v", unknown))
		}
	}
	if c.Region.Label == "" {
		problems = append(problems, "region.label is required")
	}

	if c.Source.ChunkSize <= 0 {
		problems = append(problems, "source.chunk_size must be positive")
	}
	if c.Output.Dir == "" || c.Output.CleanDir == "" {
		problems = append(problems, "output.dir and output.clean_dir are required")
	}

	if _, err := aggregate.ParseMeasure(c.Aggregate.Measure); err != nil {
		problems = append(problems, err.Error())
	}
	names := make(map[string]bool)
	for _, w := range c.Aggregate.Rankings {
		if err := w.Validate(); err != nil {
			problems = append(problems, err.Error())
		}
		if names[w.Name] {
			problems = append(problems, fmt.Sprintf("ranking %q defined twice", w.Name))
		}
		names[w.Name] = true
	}
	for _, g := range c.Aggregate.Groups {
		if g.Name == "" || g.Name == aggregate.NationalGroup {
			problems = append(problems, fmt.Sprintf("group name %q is reserved or empty", g.Name))
		}
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "" || c.InfluxDB.Org == "") {
		problems = append(problems, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		problems = append(problems, "kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	if c.Postgres.Enabled && (c.Postgres.DSN == "" || c.Postgres.Table == "") {
		problems = append(problems, "postgres.dsn and postgres.table are required when postgres is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// RegionSet returns the closed region set for the configured scope.
func (c *Config) RegionSet() (region.CodeSet, bool) {
	switch c.Region.Scope {
	case ScopeArea:
		return region.ScottishAreas(), true
	case ScopeCouncil:
		return region.ScottishCouncils(), true
	}
	return region.CodeSet{}, false
}

// Groups resolves the configured groups against the region set. Members
// outside the set are dropped and reported.
func (c *Config) Groups() ([]aggregate.Group, []string) {
	set, _ := c.RegionSet()
	var unknown []string
	groups := make([]aggregate.Group, 0, len(c.Aggregate.Groups))
	for _, g := range c.Aggregate.Groups {
		members, missing := set.Subset(g.Members)
		unknown = append(unknown, missing...)
		groups = append(groups, aggregate.Group{Name: g.Name, Members: members.Codes()})
	}
	return groups, unknown
}

// Helper functions to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.Split(value, ",")
	}
	return defaultValue
}
