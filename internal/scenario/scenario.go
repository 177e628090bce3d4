// Package scenario describes one tester run: the table to provision, the
// dataset to load, the ingestion directives, and the verification queries.
package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"loadcheck/internal/domain"
)

// Scenario is the YAML-loadable description of a run. Dataset fields are
// optional; when absent the values from the environment configuration apply.
type Scenario struct {
	Table   TableSection    `yaml:"table"`
	Dataset *DatasetSection `yaml:"dataset,omitempty"`
	Ingest  IngestSection   `yaml:"ingest"`
	Verify  []VerifySection `yaml:"verify"`
}

type TableSection struct {
	Name      string `yaml:"name"`
	CreateSQL string `yaml:"create_sql"`
	DropSQL   string `yaml:"drop_sql"`
}

type DatasetSection struct {
	URL       string `yaml:"url"`
	CachePath string `yaml:"cache_path"`
	Digest    string `yaml:"digest"`
	Algo      string `yaml:"algo"`
}

type IngestSection struct {
	InsertSQL string `yaml:"insert_sql"`
	CSVHeader bool   `yaml:"csv_header"`
}

type VerifySection struct {
	Label string `yaml:"label"`
	SQL   string `yaml:"sql"`
}

// Load reads and validates a scenario from a YAML file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

// Validate checks that the scenario names a table and is internally consistent.
func (s *Scenario) Validate() error {
	if s.Table.Name == "" {
		return fmt.Errorf("table.name is required")
	}
	if s.Table.CreateSQL == "" {
		return fmt.Errorf("table.create_sql is required")
	}
	if s.Table.DropSQL == "" {
		s.Table.DropSQL = fmt.Sprintf("DROP TABLE IF EXISTS %s", s.Table.Name)
	}
	if s.Ingest.InsertSQL == "" {
		return fmt.Errorf("ingest.insert_sql is required")
	}
	if !strings.Contains(strings.ToLower(s.Ingest.InsertSQL), strings.ToLower(s.Table.Name)) {
		return fmt.Errorf("ingest.insert_sql does not reference table %q", s.Table.Name)
	}
	if len(s.Verify) == 0 {
		return fmt.Errorf("at least one verify query is required")
	}
	for i, v := range s.Verify {
		if v.SQL == "" {
			return fmt.Errorf("verify[%d].sql is empty", i)
		}
	}
	if s.Dataset != nil {
		if s.Dataset.URL == "" || s.Dataset.Digest == "" {
			return fmt.Errorf("dataset section must set url and digest")
		}
	}
	return nil
}

// TableSpec converts the table section to the domain type.
func (s *Scenario) TableSpec() domain.TableSpec {
	return domain.TableSpec{
		Name:      s.Table.Name,
		CreateSQL: s.Table.CreateSQL,
		DropSQL:   s.Table.DropSQL,
	}
}

// Queries converts the verify section to ordered domain queries.
func (s *Scenario) Queries() []domain.VerificationQuery {
	out := make([]domain.VerificationQuery, 0, len(s.Verify))
	for _, v := range s.Verify {
		out = append(out, domain.VerificationQuery{Label: v.Label, SQL: v.SQL})
	}
	return out
}

// ApplyDataset overlays the scenario's dataset section, when present, onto the
// spec derived from the environment configuration.
func (s *Scenario) ApplyDataset(base domain.DatasetSpec) domain.DatasetSpec {
	if s.Dataset == nil {
		return base
	}
	out := base
	out.URL = s.Dataset.URL
	out.Digest = s.Dataset.Digest
	if s.Dataset.CachePath != "" {
		out.CachePath = s.Dataset.CachePath
	}
	if s.Dataset.Algo != "" {
		out.Algo = domain.DigestAlgo(strings.ToLower(s.Dataset.Algo))
	}
	return out
}

// Default returns the built-in reference scenario: a compact flight-data
// table loaded from the cached ontime CSV, verified with row-count and
// aggregate queries.
func Default() *Scenario {
	const table = "ontime_streaming_load"
	return &Scenario{
		Table: TableSection{
			Name: table,
			CreateSQL: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    Year SMALLINT,
    Quarter TINYINT,
    Month TINYINT,
    DayofMonth TINYINT,
    DayOfWeek TINYINT,
    FlightDate DATE,
    Carrier VARCHAR(16),
    TailNum VARCHAR(16),
    FlightNum VARCHAR(16),
    Origin VARCHAR(8),
    Dest VARCHAR(8),
    DepDelay INT,
    ArrDelay INT,
    Distance INT
)`, table),
			DropSQL: fmt.Sprintf("DROP TABLE IF EXISTS %s", table),
		},
		Ingest: IngestSection{
			InsertSQL: fmt.Sprintf("insert into %s format CSV", table),
			CSVHeader: true,
		},
		Verify: []VerifySection{
			{
				Label: "row count and aggregates",
				SQL:   fmt.Sprintf("select count(1), avg(Year), sum(DayOfWeek) from %s", table),
			},
		},
	}
}
