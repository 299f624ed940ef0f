package output

import (
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/models"
)

func sampleAggregates() []models.RegionYearAggregate {
	return []models.RegionYearAggregate{
		{Region: "EH", Year: 2019, SumConsumption: 100.25, MeterCount: 4, MeanConsumption: sql.NullFloat64{Float64: 25.0625, Valid: true}},
		{Region: "S12000036", Name: "City of Edinburgh", DataZone: "S01008677", Year: 2020, SumConsumption: 50, MeterCount: 0},
	}
}

func TestAggregatesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", AggregatesFile)
	want := sampleAggregates()
	if err := WriteAggregates(path, want); err != nil {
		t.Fatalf("WriteAggregates: %v", err)
	}

	raw, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if lines[0] != "Region,Name,DataZone,Year,Sum_kWh,Meters,Mean_kWh" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[2] != "S12000036,City of Edinburgh,S01008677,2020,50,0," {
		t.Errorf("undefined mean row = %q", lines[2])
	}

	got, err := ReadAggregates(path)
	if err != nil {
		t.Fatalf("ReadAggregates: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d rows", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReadAggregatesRejectsForeignTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.csv")
	os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644)
	if _, err := ReadAggregates(path); err == nil {
		t.Fatal("expected error")
	}
}

func consolidatedFixture() ([]models.ConsolidatedRow, []int) {
	years := []int{2019, 2020}
	return []models.ConsolidatedRow{{
		Region: "EH",
		Values: map[int]sql.NullFloat64{2019: {Float64: 100, Valid: true}, 2020: {Float64: 150, Valid: true}},
		Changes: []models.YearChange{{
			From: 2019, To: 2020,
			Absolute: sql.NullFloat64{Float64: 50, Valid: true},
			Percent:  sql.NullFloat64{Float64: 50, Valid: true},
		}},
		Overall: models.YearChange{
			From: 2019, To: 2020,
			Absolute: sql.NullFloat64{Float64: 50, Valid: true},
			Percent:  sql.NullFloat64{Float64: 50, Valid: true},
		},
	}, {
		Region: "G",
		Values: map[int]sql.NullFloat64{2020: {Float64: 80, Valid: true}},
		Changes: []models.YearChange{{From: 2019, To: 2020}},
		Overall: models.YearChange{From: 2019, To: 2020},
	}}, years
}

func TestWriteConsolidated(t *testing.T) {
	rows, years := consolidatedFixture()
	path := filepath.Join(t.TempDir(), ConsolidatedFile)
	if err := WriteConsolidated(path, rows, years); err != nil {
		t.Fatalf("WriteConsolidated: %v", err)
	}

	raw, _ := os.ReadFile(path)
	want := "Region,Name,2019,2020,Change_2019_2020,Percent_2019_2020,Change_kWh,Change_Pct\n" +
		"EH,,100,150,50,50,50,50\n" +
		"G,,,80,,,,\n"
	if string(raw) != want {
		t.Errorf("consolidated =\n%s\nwant\n%s", raw, want)
	}
}

func TestWriteRankingVarianceTrends(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteRanking(dir, models.Ranking{
		Name: "covid", FromYear: 2019, ToYear: 2020,
		Rows: []models.RankedRow{{Rank: 1, Region: "EH", Percent: sql.NullFloat64{Float64: 12.5, Valid: true}}},
	})
	if err != nil {
		t.Fatalf("WriteRanking: %v", err)
	}
	if filepath.Base(path) != "ranking_covid.csv" {
		t.Errorf("path = %s", path)
	}
	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), "1,EH,,,,12.5") {
		t.Errorf("ranking = %q", raw)
	}

	if err := WriteVariance(filepath.Join(dir, VarianceFile), []models.VarianceRow{{Region: "G", Years: 1}}); err != nil {
		t.Fatalf("WriteVariance: %v", err)
	}
	if err := WriteTrends(filepath.Join(dir, TrendsFile), []models.TrendPoint{{Group: "national", Year: 2019, Members: 2, Mean: sql.NullFloat64{Float64: 3, Valid: true}}}); err != nil {
		t.Fatalf("WriteTrends: %v", err)
	}
	raw, _ = os.ReadFile(filepath.Join(dir, TrendsFile))
	if string(raw) != "Group,Year,Members,Mean\nnational,2019,2,3\n" {
		t.Errorf("trends = %q", raw)
	}
}

func TestPartFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clean", "electricity_scotland_2019.csv")
	header := []string{"Postcode", "Total_cons_kwh"}

	p, err := CreatePartFile(path, header)
	if err != nil {
		t.Fatalf("CreatePartFile: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("final path exists before commit")
	}
	if err := p.Append([]models.TaggedRecord{{Record: models.RawRecord{Header: header, Values: []string{" eh1 1aa", "10"}}, Region: "EH"}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := p.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	raw, _ := os.ReadFile(path)
	if string(raw) != "Postcode,Total_cons_kwh\n\" eh1 1aa\",10\n" {
		t.Errorf("clean file = %q", raw)
	}
	if _, err := os.Stat(path + ".part"); !os.IsNotExist(err) {
		t.Errorf("part file left behind")
	}
	if p.Rows() != 1 {
		t.Errorf("Rows = %d", p.Rows())
	}
}

func TestPartFileAbort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.csv")
	p, err := CreatePartFile(path, []string{"Postcode"})
	if err != nil {
		t.Fatal(err)
	}
	p.Abort()
	for _, name := range []string{path, path + ".part"} {
		if _, err := os.Stat(name); !os.IsNotExist(err) {
			t.Errorf("%s should not exist", name)
		}
	}
}

func TestBuildWorkbook(t *testing.T) {
	rows, years := consolidatedFixture()
	data, err := BuildWorkbook(rows, years, []models.Ranking{{Name: "covid", FromYear: 2019, ToYear: 2020}}, nil)
	if err != nil {
		t.Fatalf("BuildWorkbook: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 3 || sheets[0] != "Consolidated" || sheets[1] != "Rank covid" {
		t.Errorf("sheets = %v", sheets)
	}
	v, err := f.GetCellValue("Consolidated", "D2")
	if err != nil || v != "150" {
		t.Errorf("D2 = %q, %v", v, err)
	}
}

func TestBuildWorkbookSanitizesRankingSheets(t *testing.T) {
	rows, years := consolidatedFixture()
	rankings := []models.Ranking{
		{Name: "pandemic jump in household consumption", FromYear: 2019, ToYear: 2020},
		{Name: "crisis: 2021/2022 [asc]", FromYear: 2021, ToYear: 2022},
	}
	data, err := BuildWorkbook(rows, years, rankings, nil)
	if err != nil {
		t.Fatalf("BuildWorkbook: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	want := []string{"Consolidated", "Rank pandemic jump in household", "Rank crisis_ 2021_2022 (asc)", "Variance"}
	if strings.Join(sheets, "|") != strings.Join(want, "|") {
		t.Errorf("sheets = %q", sheets)
	}
}

func TestBuildRankingPDF(t *testing.T) {
	data, err := BuildRankingPDF("Scotland electricity rankings", []models.Ranking{{
		Name: "overall", FromYear: 2015, ToYear: 2023,
		Rows: []models.RankedRow{{Rank: 1, Region: "S12000036", Name: "City of Edinburgh"}},
	}})
	if err != nil {
		t.Fatalf("BuildRankingPDF: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Errorf("not a PDF: %q", data[:8])
	}
}
