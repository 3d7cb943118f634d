package handler

import (
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/ticket-admin/internal/storage/postgres"
)

// debugDB reports connectivity, the catalog table layout and a few rows.
func (h *Handler) debugDB(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.inspector.Ping(ctx); err != nil {
		writeError(ctx, w, err)
		return
	}

	var (
		columns []postgres.Column
		sample  []map[string]any
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		columns, err = h.inspector.Columns(gctx, h.cfg.CatalogTable)
		return err
	})
	g.Go(func() (err error) {
		sample, err = h.inspector.Sample(gctx, h.cfg.CatalogTable, h.cfg.SampleRows)
		return err
	})
	if err := g.Wait(); err != nil {
		writeError(ctx, w, err)
		return
	}

	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("connection", func(e *jx.Encoder) { e.Str("ok") })
			e.Field("table", func(e *jx.Encoder) { e.Str(h.cfg.CatalogTable) })
			e.Field("columns", func(e *jx.Encoder) { encodeColumns(e, columns) })
			e.Field("sample", func(e *jx.Encoder) { encodeRows(e, sample) })
		})
	})
}

// debugTables lists every table with its columns and one sample row.
func (h *Handler) debugTables(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tables, err := h.inspector.Tables(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	samples := make([][]map[string]any, len(tables))
	for i, t := range tables {
		if samples[i], err = h.inspector.Sample(ctx, t.Name, 1); err != nil {
			writeError(ctx, w, err)
			return
		}
	}

	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i, t := range tables {
				e.Obj(func(e *jx.Encoder) {
					e.Field("name", func(e *jx.Encoder) { e.Str(t.Name) })
					e.Field("columns", func(e *jx.Encoder) { encodeColumns(e, t.Columns) })
					e.Field("sample", func(e *jx.Encoder) {
						if len(samples[i]) == 0 {
							e.Null()
							return
						}
						encodeRow(e, samples[i][0])
					})
				})
			}
		})
	})
}

func encodeColumns(e *jx.Encoder, cols []postgres.Column) {
	e.Arr(func(e *jx.Encoder) {
		for _, c := range cols {
			e.Obj(func(e *jx.Encoder) {
				e.Field("name", func(e *jx.Encoder) { e.Str(c.Name) })
				e.Field("type", func(e *jx.Encoder) { e.Str(c.DataType) })
				e.Field("nullable", func(e *jx.Encoder) { e.Bool(c.Nullable) })
			})
		}
	})
}

func encodeRows(e *jx.Encoder, rows []map[string]any) {
	e.Arr(func(e *jx.Encoder) {
		for _, row := range rows {
			encodeRow(e, row)
		}
	})
}

// encodeRow writes row with sorted keys. Credential columns are masked.
func encodeRow(e *jx.Encoder, row map[string]any) {
	e.Obj(func(e *jx.Encoder) {
		for _, k := range slices.Sorted(maps.Keys(row)) {
			e.Field(k, func(e *jx.Encoder) {
				if secretColumn(k) {
					e.Str("[redacted]")
					return
				}
				encodeValue(e, row[k])
			})
		}
	})
}

func secretColumn(name string) bool {
	name = strings.ToLower(name)
	return strings.Contains(name, "password") || strings.Contains(name, "hash")
}
