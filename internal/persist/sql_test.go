package persist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/Suraj-creation/Sysmind-CLI/internal/alerts"
	"github.com/Suraj-creation/Sysmind-CLI/internal/samples"
)

// newMockSQL returns a SQL store over a sqlmock connection speaking the
// postgres dialect. Expectations are checked when the test ends.
func newMockSQL(t *testing.T) (*SQL, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sql expectations: %v", err)
		}
		db.Close()
	})
	return &SQL{db: gdb}, mock
}

var baselineCols = []string{
	"metric_name", "mean", "std_dev", "min_value", "max_value",
	"p95", "sample_count", "computed_at", "updated_at",
}

func parseSchema(t *testing.T, model interface{}) *schema.Schema {
	t.Helper()
	s, err := schema.Parse(model, &sync.Map{}, schema.NamingStrategy{})
	if err != nil {
		t.Fatalf("parse schema: %v", err)
	}
	return s
}

func TestSQLSchema_Tables(t *testing.T) {
	tests := []struct {
		model   interface{}
		table   string
		primary string
	}{
		{&SampleRow{}, "samples", "id"},
		{&BaselineRow{}, "baselines", "metric_name"},
		{&AlertRow{}, "alerts", "id"},
	}
	for _, tc := range tests {
		s := parseSchema(t, tc.model)
		if s.Table != tc.table {
			t.Errorf("table: got %q, want %q", s.Table, tc.table)
		}
		if s.PrioritizedPrimaryField == nil || s.PrioritizedPrimaryField.DBName != tc.primary {
			t.Errorf("%s primary key: got %+v, want %q", tc.table, s.PrioritizedPrimaryField, tc.primary)
		}
	}
}

func TestSQLSchema_SampleIndex(t *testing.T) {
	s := parseSchema(t, &SampleRow{})
	idx, ok := s.ParseIndexes()["idx_samples_metric_ts"]
	if !ok {
		t.Fatal("composite index missing")
	}
	if len(idx.Fields) != 2 || idx.Fields[0].DBName != "metric_name" || idx.Fields[1].DBName != "ts" {
		t.Errorf("index fields: %+v", idx.Fields)
	}
}

func TestBaselineRow_RoundTrip(t *testing.T) {
	b := sampleBaseline("cpu.usage_percent", 40)
	got := toBaselineRow(b).baseline()
	if got != b {
		t.Fatalf("got %+v, want %+v", got, b)
	}
}

func TestToAlertRow(t *testing.T) {
	resolved := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	a := alerts.Alert{
		ID:         "a1",
		RuleName:   "low-overall",
		Severity:   "critical",
		State:      alerts.StateResolved,
		Message:    "overall_score < 50",
		Value:      42,
		FiredAt:    base,
		ResolvedAt: &resolved,
	}
	row := toAlertRow(a)
	if row.ID != "a1" || row.RuleName != "low-overall" || row.State != alerts.StateResolved ||
		row.ResolvedAt == nil || !row.ResolvedAt.Equal(resolved) || !row.FiredAt.Equal(base) {
		t.Fatalf("got %+v", row)
	}
}

func TestSQL_SaveBaselineUpserts(t *testing.T) {
	s, mock := newMockSQL(t)
	mock.ExpectExec(`INSERT INTO "baselines" .* ON CONFLICT \("metric_name"\) DO UPDATE SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.SaveBaseline(context.Background(), sampleBaseline("cpu.usage_percent", 40)); err != nil {
		t.Fatal(err)
	}
}

func TestSQL_LoadBaseline(t *testing.T) {
	ctx := context.Background()
	local := base.In(time.FixedZone("UTC+2", 2*3600))

	t.Run("found", func(t *testing.T) {
		s, mock := newMockSQL(t)
		mock.ExpectQuery(`SELECT \* FROM "baselines" WHERE metric_name = \$1`).
			WillReturnRows(sqlmock.NewRows(baselineCols).
				AddRow("cpu.usage_percent", 40.0, 2.5, 35.0, 45.0, 44.0, 20, local, local))

		got, ok, err := s.LoadBaseline(ctx, "cpu.usage_percent")
		if err != nil || !ok {
			t.Fatalf("ok=%v err=%v", ok, err)
		}
		if got != sampleBaseline("cpu.usage_percent", 40) {
			t.Errorf("got %+v", got)
		}
		if got.ComputedAt.Location() != time.UTC {
			t.Errorf("computed_at not normalised to UTC: %v", got.ComputedAt)
		}
	})

	t.Run("missing", func(t *testing.T) {
		s, mock := newMockSQL(t)
		mock.ExpectQuery(`FROM "baselines" WHERE metric_name = \$1`).
			WillReturnRows(sqlmock.NewRows(baselineCols))

		_, ok, err := s.LoadBaseline(ctx, "gpu.usage_percent")
		if err != nil || ok {
			t.Fatalf("want not found without error, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("error", func(t *testing.T) {
		s, mock := newMockSQL(t)
		boom := errors.New("connection reset")
		mock.ExpectQuery(`FROM "baselines"`).WillReturnError(boom)

		_, _, err := s.LoadBaseline(ctx, "cpu.usage_percent")
		if !errors.Is(err, boom) {
			t.Fatalf("want wrapped driver error, got %v", err)
		}
	})
}

func TestSQL_ListAndDeleteBaselines(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockSQL(t)
	mock.ExpectQuery(`SELECT \* FROM "baselines" ORDER BY metric_name`).
		WillReturnRows(sqlmock.NewRows(baselineCols).
			AddRow("cpu.usage_percent", 40.0, 2.5, 35.0, 45.0, 44.0, 20, base, base).
			AddRow("memory.usage_percent", 60.0, 2.5, 55.0, 65.0, 64.0, 20, base, base))
	mock.ExpectExec(`DELETE FROM "baselines" WHERE metric_name = \$1`).
		WithArgs("cpu.usage_percent").
		WillReturnResult(sqlmock.NewResult(0, 1))

	bs, err := s.ListBaselines(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(bs) != 2 || bs[0].Metric != "cpu.usage_percent" || bs[1].Mean != 60 {
		t.Errorf("got %+v", bs)
	}
	if err := s.DeleteBaseline(ctx, "cpu.usage_percent"); err != nil {
		t.Fatal(err)
	}
}

func TestSQL_AppendSample(t *testing.T) {
	s, mock := newMockSQL(t)
	mock.ExpectQuery(`INSERT INTO "samples" \("metric_name","ts","value"\) VALUES \(\$1,\$2,\$3\) RETURNING "id"`).
		WithArgs("cpu.usage_percent", sqlmock.AnyArg(), 42.5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	err := s.AppendSample(context.Background(), samples.Sample{Metric: "cpu.usage_percent", Timestamp: at(1), Value: 42.5})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSQL_QuerySamples(t *testing.T) {
	ctx := context.Background()
	cols := []string{"id", "metric_name", "ts", "value"}

	t.Run("bounded range", func(t *testing.T) {
		s, mock := newMockSQL(t)
		mock.ExpectQuery(`FROM "samples" WHERE metric_name = \$1 AND ts >= \$2 AND ts <= \$3 ORDER BY ts, id`).
			WithArgs("cpu.usage_percent", at(0), at(10)).
			WillReturnRows(sqlmock.NewRows(cols).
				AddRow(1, "cpu.usage_percent", at(1).Local(), 10.0).
				AddRow(2, "cpu.usage_percent", at(2).Local(), 20.0))

		got, err := s.QuerySamples(ctx, "cpu.usage_percent", samples.Range{From: at(0), To: at(10)})
		if err != nil {
			t.Fatal(err)
		}
		want := []samples.Sample{
			{Metric: "cpu.usage_percent", Timestamp: at(1), Value: 10},
			{Metric: "cpu.usage_percent", Timestamp: at(2), Value: 20},
		}
		if len(got) != len(want) {
			t.Fatalf("got %+v", got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("[%d] got %+v, want %+v", i, got[i], want[i])
			}
		}
	})

	t.Run("open range", func(t *testing.T) {
		s, mock := newMockSQL(t)
		mock.ExpectQuery(`FROM "samples" WHERE metric_name = \$1 ORDER BY ts, id`).
			WithArgs("cpu.usage_percent").
			WillReturnRows(sqlmock.NewRows(cols))

		got, err := s.QuerySamples(ctx, "cpu.usage_percent", samples.Range{})
		if err != nil || len(got) != 0 {
			t.Fatalf("got %+v, err %v", got, err)
		}
	})
}

func TestSQL_Prune(t *testing.T) {
	s, mock := newMockSQL(t)
	mock.ExpectExec(`DELETE FROM "samples" WHERE ts < \$1`).
		WithArgs(at(5)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM "samples"`).
		WillReturnError(errors.New("disk full"))

	if err := s.Prune(context.Background(), at(5)); err != nil {
		t.Fatal(err)
	}
	if err := s.Prune(context.Background(), at(6)); err == nil {
		t.Fatal("want error from failed delete")
	}
}

func TestSQL_RecordAlertAndHistory(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockSQL(t)
	resolved := at(30)

	mock.ExpectExec(`INSERT INTO "alerts" .* ON CONFLICT \("id"\) DO UPDATE SET "state"="excluded"."state"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "alerts" ORDER BY fired_at DESC LIMIT 2`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "rule_name", "severity", "state", "message", "value", "fired_at", "resolved_at"}).
			AddRow("a2", "low-overall", "critical", alerts.StateResolved, "overall_score < 50", 42.0, at(20).Local(), resolved).
			AddRow("a1", "low-overall", "critical", alerts.StateFiring, "overall_score < 50", 40.0, at(10).Local(), nil))

	err := s.RecordAlert(ctx, alerts.Alert{
		ID: "a2", RuleName: "low-overall", Severity: "critical",
		State: alerts.StateResolved, FiredAt: at(20), ResolvedAt: &resolved,
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Alerts(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "a2" || got[1].ID != "a1" {
		t.Fatalf("order: got %+v", got)
	}
	if !got[0].FiredAt.Equal(at(20)) || got[0].FiredAt.Location() != time.UTC {
		t.Errorf("fired_at: %v", got[0].FiredAt)
	}
	if got[0].ResolvedAt == nil || got[1].ResolvedAt != nil {
		t.Errorf("resolved_at: %v, %v", got[0].ResolvedAt, got[1].ResolvedAt)
	}
}

func TestSQL_Ping(t *testing.T) {
	s, mock := newMockSQL(t)
	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("server closed the connection"))

	if err := s.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("want ping error")
	}
}
