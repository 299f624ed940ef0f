package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/aggregate"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(cfg.Years) != 9 || cfg.Years[0] != 2015 || cfg.Years[8] != 2023 {
		t.Errorf("years = %v", cfg.Years)
	}
	if !strings.HasSuffix(cfg.Sources[2019], "electricity_2019.csv") {
		t.Errorf("2019 source = %s", cfg.Sources[2019])
	}
	if cfg.Region.Label != "electricity_scotland" {
		t.Errorf("label = %s", cfg.Region.Label)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etl.yaml")
	yaml := `
years: [2019, 2020]
sources:
  2020: data/2020.csv
region:
  scope: council
  targets: ["Glasgow City", "S12000036"]
source:
  chunk_size: 5000
  max_elapsed: 45s
aggregate:
  measure: total
  by_data_zone: true
  rankings:
    - name: covid
      from: 2019
      to: 2020
      order: desc
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ETL_OUTPUT_DIR", "/tmp/etl-out")
	t.Setenv("ETL_SOURCE_2019", "data/2019.csv")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if len(cfg.Years) != 2 || cfg.Sources[2019] != "data/2019.csv" || cfg.Sources[2020] != "data/2020.csv" {
		t.Errorf("years/sources = %v %v", cfg.Years, cfg.Sources)
	}
	if !strings.HasSuffix(cfg.Sources[2023], "electricity_2023.csv") {
		t.Errorf("unlisted default source dropped: %v", cfg.Sources)
	}
	if cfg.Region.Scope != ScopeCouncil || len(cfg.Region.Targets) != 2 {
		t.Errorf("region = %+v", cfg.Region)
	}
	if cfg.Source.ChunkSize != 5000 || cfg.Source.MaxElapsed != 45*time.Second {
		t.Errorf("source = %+v", cfg.Source)
	}
	if cfg.Source.HeaderTimeout != 30*time.Second {
		t.Errorf("default header timeout lost: %v", cfg.Source.HeaderTimeout)
	}
	if len(cfg.Aggregate.Rankings) != 1 || cfg.Aggregate.Rankings[0].Order != aggregate.Descending {
		t.Errorf("rankings = %+v", cfg.Aggregate.Rankings)
	}
	if cfg.Output.Dir != "/tmp/etl-out" {
		t.Errorf("output dir = %s", cfg.Output.Dir)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
}

func TestLoadUsesConfigFileEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etl.yaml")
	os.WriteFile(path, []byte("region:\n  label: electricity_test\n"), 0o644)
	t.Setenv(ConfigFileEnv, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Region.Label != "electricity_test" {
		t.Errorf("label = %s", cfg.Region.Label)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestEnvYears(t *testing.T) {
	t.Setenv("ETL_YEARS", "2015-2017, 2021")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []int{2015, 2016, 2017, 2021}
	if len(cfg.Years) != len(want) {
		t.Fatalf("years = %v", cfg.Years)
	}
	for i := range want {
		if cfg.Years[i] != want[i] {
			t.Errorf("years = %v", cfg.Years)
		}
	}

	t.Setenv("ETL_YEARS", "20x5")
	if _, err := Load(""); err == nil {
		t.Error("expected error for bad ETL_YEARS")
	}
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Default()
	cfg.Years = append(cfg.Years, 2030)
	cfg.Region.Strategy = "guess"
	cfg.Region.Targets = []string{"XX"}
	cfg.Source.ChunkSize = 0
	cfg.Aggregate.Measure = "median"
	cfg.Aggregate.ByDataZone = true
	cfg.Kafka.Enabled = true
	cfg.Kafka.Topic = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"2030", "guess", "XX", "chunk_size", "median", "by_data_zone", "kafka"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error lacks %q:\n%v", want, err)
		}
	}
}

func TestGroupsResolveAgainstScope(t *testing.T) {
	cfg := Default()
	cfg.Region.Scope = ScopeCouncil

	groups, unknown := cfg.Groups()
	if len(unknown) != 0 {
		t.Errorf("unknown = %v", unknown)
	}
	if len(groups) != 2 || len(groups[0].Members) != 4 || len(groups[1].Members) != 3 {
		t.Errorf("groups = %+v", groups)
	}

	cfg.Region.Scope = ScopeArea
	cfg.Aggregate.Groups = []GroupConfig{{Name: "east", Members: []string{"EH", "KY", "Fife"}}}
	groups, unknown = cfg.Groups()
	if len(groups[0].Members) != 2 || len(unknown) != 1 {
		t.Errorf("area groups = %+v unknown = %v", groups, unknown)
	}
}
