package db

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTx opens a pgxmock transaction; the mock pool doubles as the tx.
func mockTx(t *testing.T) (pgxmock.PgxPoolIface, pgx.Tx) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	mock.ExpectBegin()
	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)
	return mock, tx
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "kpi_master",
		Columns:      []string{"dept_id", "kpi_key"},
		ConflictKeys: []string{"dept_id", "kpi_key"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "kpi_master",
		ConflictKeys: []string{"kpi_key"},
	}, [][]any{{1, "sla_compliance"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "kpi_master",
		Columns: []string{"dept_id", "kpi_key"},
	}, [][]any{{1, "sla_compliance"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, tx := mockTx(t)

	cols := []string{"dept_id", "kpi_key", "kpi_name"}
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_kpi_master" \(LIKE "kpi_master" INCLUDING DEFAULTS\)`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_kpi_master"}, cols).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("dept_id", "kpi_key"\) DO UPDATE SET "kpi_name" = EXCLUDED."kpi_name"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	n, err := BulkUpsert(context.Background(), tx, UpsertConfig{
		Table:        "kpi_master",
		Columns:      cols,
		ConflictKeys: []string{"dept_id", "kpi_key"},
	}, [][]any{{int64(1), "sla_compliance", "SLA Compliance"}, {int64(1), "fcr", "First Contact Resolution"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	// The caller owns the commit.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_DoNothing(t *testing.T) {
	mock, tx := mockTx(t)

	cols := []string{"dept_id", "kpi_key"}
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_kpi_master"}, cols).WillReturnResult(1)
	mock.ExpectExec(`ON CONFLICT \("dept_id", "kpi_key"\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	n, err := BulkUpsert(context.Background(), tx, UpsertConfig{
		Table:        "kpi_master",
		Columns:      cols,
		ConflictKeys: cols,
	}, [][]any{{int64(1), "sla_compliance"}})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyError(t *testing.T) {
	mock, tx := mockTx(t)

	cols := []string{"dept_id", "kpi_key"}
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_kpi_master"}, cols).WillReturnError(errors.New("copy failed"))

	_, err := BulkUpsert(context.Background(), tx, UpsertConfig{
		Table:        "kpi_master",
		Columns:      cols,
		ConflictKeys: []string{"dept_id", "kpi_key"},
	}, [][]any{{int64(1), "sla_compliance"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"kpi_master", `"kpi_master"`},
		{"public.kpi_master", `"public"."kpi_master"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"dept_id", "kpi_key", "kpi_name"})
	assert.Equal(t, `"dept_id", "kpi_key", "kpi_name"`, result)
}

func TestMergeSQL(t *testing.T) {
	t.Run("updates non-key columns by default", func(t *testing.T) {
		got := mergeSQL(UpsertConfig{
			Table:        "kpi_master",
			Columns:      []string{"dept_id", "kpi_key", "kpi_name"},
			ConflictKeys: []string{"dept_id", "kpi_key"},
		}, "_tmp")
		assert.Equal(t,
			`INSERT INTO "kpi_master" ("dept_id", "kpi_key", "kpi_name") SELECT "dept_id", "kpi_key", "kpi_name" FROM "_tmp" ON CONFLICT ("dept_id", "kpi_key") DO UPDATE SET "kpi_name" = EXCLUDED."kpi_name"`,
			got)
	})

	t.Run("key-only rows do nothing on conflict", func(t *testing.T) {
		got := mergeSQL(UpsertConfig{
			Table:        "departments",
			Columns:      []string{"dept_name"},
			ConflictKeys: []string{"dept_name"},
		}, "_tmp")
		assert.True(t, strings.HasSuffix(got, `ON CONFLICT ("dept_name") DO NOTHING`), got)
	})
}
