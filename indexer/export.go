package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type closureParquetRow struct {
	Sequence          int64  `parquet:"name=sequence, type=INT64"`
	Owner             string `parquet:"name=owner, type=BYTE_ARRAY, convertedtype=UTF8"`
	Scope             string `parquet:"name=scope, type=BYTE_ARRAY, convertedtype=UTF8"`
	ElapsedDays       int64  `parquet:"name=elapsed_days, type=INT64"`
	PrincipalReturned string `parquet:"name=principal_returned, type=BYTE_ARRAY, convertedtype=UTF8"`
	YieldReturned     string `parquet:"name=yield_returned, type=BYTE_ARRAY, convertedtype=UTF8"`
	Payout            string `parquet:"name=payout, type=BYTE_ARRAY, convertedtype=UTF8"`
	Penalty           string `parquet:"name=penalty, type=BYTE_ARRAY, convertedtype=UTF8"`
	SharesBurned      string `parquet:"name=shares_burned, type=BYTE_ARRAY, convertedtype=UTF8"`
	Burned            string `parquet:"name=burned, type=BYTE_ARRAY, convertedtype=UTF8"`
	PoolCredited      string `parquet:"name=pool_credited, type=BYTE_ARRAY, convertedtype=UTF8"`
	TreasuryPaid      string `parquet:"name=treasury_paid, type=BYTE_ARRAY, convertedtype=UTF8"`
	ClosedAt          string `parquet:"name=closed_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	Digest            string `parquet:"name=digest, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportClosures writes the closures settled on the given UTC day to a
// SNAPPY-compressed parquet file under dir, one row per closure, and
// returns the file path and row count. Reconciliation jobs pick the
// files up offline; an empty day still produces a file so a missing
// report is distinguishable from a quiet one.
func (ix *Indexer) ExportClosures(dir string, day time.Time) (string, int, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	var rows []StakeClosure
	if err := ix.db.Where("closed_at >= ? AND closed_at < ?", start.Unix(), end.Unix()).
		Order("sequence asc").Find(&rows).Error; err != nil {
		return "", 0, fmt.Errorf("indexer: load closures: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("indexer: create export dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("closures_%s.parquet", start.Format("20060102")))
	if err := writeClosureParquet(path, rows); err != nil {
		return "", 0, err
	}
	ix.logger.Info("exported closures", "path", path, "rows", len(rows))
	return path, len(rows), nil
}

func writeClosureParquet(path string, rows []StakeClosure) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("indexer: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(closureParquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		pr := &closureParquetRow{
			Sequence:          int64(row.Sequence),
			Owner:             row.Owner,
			Scope:             row.Scope,
			ElapsedDays:       int64(row.ElapsedDays),
			PrincipalReturned: row.PrincipalReturned,
			YieldReturned:     row.YieldReturned,
			Payout:            row.Payout,
			Penalty:           row.Penalty,
			SharesBurned:      row.SharesBurned,
			Burned:            row.Burned,
			PoolCredited:      row.PoolCredited,
			TreasuryPaid:      row.TreasuryPaid,
			ClosedAt:          time.Unix(row.ClosedAt, 0).UTC().Format(time.RFC3339),
			Digest:            row.Digest,
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("indexer: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("indexer: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("indexer: close parquet: %w", err)
	}
	return nil
}
