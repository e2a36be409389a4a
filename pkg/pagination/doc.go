// Package pagination implements cursor-driven paging over ISS history tables.
//
// ISS returns history in pages of at most PAGESIZE rows. The size of the full
// result set is published by a separate "history.cursor" table, so the total
// row count is known before the first data page is requested:
//
//	history.cursor
//
//	INDEX;TOTAL;PAGESIZE
//	0;250;100
//
// Example usage:
//
//	cur, err := pagination.ParseCursor(body)
//	w := pagination.NewWalker(fetcher, pagination.DefaultConfig(), logger)
//	res, err := w.Walk(ctx, cur, func(rows []string) error {
//		return sink.Process(ctx, sink.Batch{SecID: "SBER", Rows: rows})
//	})
//
// The walker:
//   - starts at the cursor's INDEX
//   - advances by the number of rows actually received, not by PAGESIZE
//   - stops once the offset reaches TOTAL or a page comes back empty
//   - delivers pages strictly in increasing offset order
package pagination
