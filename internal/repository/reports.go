package repository

import (
	"context"
	"encoding/json"

	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
)

func (r *Repository) GetReportByID(ctx context.Context, id int64) (*domain.Report, error) {
	query := `
		SELECT tenant_id, name, query, cached_data, chart_config, last_render_error, refreshed_at, created_at, version
		FROM reports WHERE id = $1
	`

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	report := &domain.Report{
		ID: id,
	}

	var cachedData, chartConfig []byte
	dst := []any{&report.TenantID, &report.Name, &report.Query, &cachedData, &chartConfig, &report.LastRenderError, &report.RefreshedAt, &report.CreatedAt, &report.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, id).Scan(dst...); err != nil {
		return nil, err
	}
	report.CachedData = cachedData
	report.ChartConfig = chartConfig

	return report, nil
}

func (r *Repository) CreateReport(ctx context.Context, report *domain.Report) error {
	query := `
		INSERT INTO reports (tenant_id, name, query, cached_data, chart_config)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, version
	`

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	args := []any{report.TenantID, report.Name, report.Query, []byte(report.CachedData), []byte(report.ChartConfig)}
	return r.dbpool.QueryRowContext(ctx, query, args...).Scan(&report.ID, &report.CreatedAt, &report.Version)
}

// UpdateReportCache 把实时查询的最新结果写回缓存
func (r *Repository) UpdateReportCache(ctx context.Context, id int64, data json.RawMessage) error {
	query := `
		UPDATE reports SET cached_data = $1, refreshed_at = now(), version = version + 1 WHERE id = $2
	`

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	_, err := r.dbpool.ExecContext(ctx, query, []byte(data), id)
	return err
}

// UpdateReportRenderError 记录最近一次渲染错误，传 nil 表示清除
func (r *Repository) UpdateReportRenderError(ctx context.Context, id int64, message *string) error {
	query := `
		UPDATE reports SET last_render_error = $1, version = version + 1 WHERE id = $2
	`

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	_, err := r.dbpool.ExecContext(ctx, query, message, id)
	return err
}

// ExecuteReportQuery 重新执行报表的实时查询，把结果整理成 JSON 数组。
// 查询语句本身由上游的 SQL 校验器把关，这里只负责执行
func (r *Repository) ExecuteReportQuery(ctx context.Context, query string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		dst := make([]any, len(columns))
		for i := range values {
			dst[i] = &values[i]
		}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, column := range columns {
			// 驱动返回的字节串转成字符串，避免被 JSON 编码成 base64
			if b, ok := values[i].([]byte); ok {
				row[column] = string(b)
			} else {
				row[column] = values[i]
			}
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return json.Marshal(result)
}
