package writer

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	parquetwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "optionflow/config"
	"optionflow/logger"
	"optionflow/models"
)

// ParquetRecord is the archive row schema for one accepted contract.
type ParquetRecord struct {
	Currency        string  `parquet:"name=currency, type=BYTE_ARRAY, convertedtype=UTF8"`
	InstrumentName  string  `parquet:"name=instrument_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Strike          float64 `parquet:"name=strike, type=DOUBLE"`
	Expiration      int64   `parquet:"name=expiration, type=INT64"`
	TenorDays       int32   `parquet:"name=tenor_days, type=INT32"`
	Side            string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	OpenInterest    float64 `parquet:"name=open_interest, type=DOUBLE"`
	Volume          float64 `parquet:"name=volume, type=DOUBLE"`
	MarkIV          float64 `parquet:"name=mark_iv, type=DOUBLE"`
	UnderlyingPrice float64 `parquet:"name=underlying_price, type=DOUBLE"`
	DistancePct     float64 `parquet:"name=distance_pct, type=DOUBLE"`
	SnapshotTime    int64   `parquet:"name=snapshot_time, type=INT64"`
}

// memoryFileWriter implements ParquetFile for in-memory writing
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) { return mfw, nil }
func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error)   { return mfw, nil }

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error)  { return mfw.buffer.Read(b) }
func (mfw *memoryFileWriter) Write(b []byte) (int, error) { return mfw.buffer.Write(b) }
func (mfw *memoryFileWriter) Close() error                { return nil }
func (mfw *memoryFileWriter) Bytes() []byte               { return mfw.buffer.Bytes() }

// ParquetWriter archives one snapshot's accepted contracts as a parquet
// file, locally and optionally to S3.
type ParquetWriter struct {
	config   *appconfig.Config
	uploader *Uploader
	log      *logger.Log
}

func NewParquetWriter(cfg *appconfig.Config, uploader *Uploader) *ParquetWriter {
	return &ParquetWriter{
		config:   cfg,
		uploader: uploader,
		log:      logger.GetLogger(),
	}
}

// Encode serializes the snapshot's contracts as snappy compressed
// parquet bytes.
func (w *ParquetWriter) Encode(snapshot *models.Snapshot) ([]byte, error) {
	fw := newMemoryFileWriter()
	pw, err := parquetwriter.NewParquetWriter(fw, new(ParquetRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, c := range snapshot.Contracts {
		record := ParquetRecord{
			Currency:        c.Currency,
			InstrumentName:  c.InstrumentName,
			Strike:          c.Strike,
			Expiration:      c.Expiration.UnixMilli(),
			TenorDays:       int32(c.TenorDays),
			Side:            string(c.Side),
			OpenInterest:    c.OpenInterest,
			Volume:          c.Volume,
			MarkIV:          c.MarkIV,
			UnderlyingPrice: c.UnderlyingPrice,
			DistancePct:     c.DistancePct,
			SnapshotTime:    snapshot.Timestamp.UnixMilli(),
		}
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), nil
}

// Archive writes the snapshot's parquet file under the output directory
// and, when an uploader is wired, pushes it to S3 under a date
// partitioned key.
func (w *ParquetWriter) Archive(snapshot *models.Snapshot) (string, error) {
	log := w.log.WithComponent("parquet_writer").WithFields(logger.Fields{
		"currency":  snapshot.Currency,
		"contracts": len(snapshot.Contracts),
	})

	data, err := w.Encode(snapshot)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(w.config.Output.Directory, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	ts := snapshot.Timestamp.UTC().Format("20060102_150405")
	path := filepath.Join(w.config.Output.Directory,
		fmt.Sprintf("%s_chain_%s.parquet", snapshot.Currency, ts))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write parquet file: %w", err)
	}
	log.WithFields(logger.Fields{"path": path, "file_size": len(data)}).Info("chain archived")

	if w.uploader != nil {
		key := archiveKey(w.config.Storage.S3.Prefix, snapshot)
		if err := w.uploader.Upload(key, data); err != nil {
			// The local copy already exists; S3 failures are reported but
			// never lose the run.
			log.WithError(err).WithFields(logger.Fields{"s3_key": key}).Error("failed to upload archive")
			return path, nil
		}
		log.WithFields(logger.Fields{"s3_key": key}).Info("archive uploaded")
	}
	return path, nil
}

// archiveKey builds the date partitioned S3 object key for a snapshot.
func archiveKey(prefix string, snapshot *models.Snapshot) string {
	t := snapshot.Timestamp.UTC()
	key := filepath.Join(
		fmt.Sprintf("currency=%s", snapshot.Currency),
		fmt.Sprintf("date=%s", t.Format("2006-01-02")),
		fmt.Sprintf("%s_chain_%s.parquet", snapshot.Currency, t.Format("20060102150405")),
	)
	if prefix != "" {
		key = filepath.Join(prefix, key)
	}
	return filepath.ToSlash(key)
}
