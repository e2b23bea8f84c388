package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"

	"github.com/lazypower/calibrator/internal/calibration"
)

const exportFormat = "calibrator.records.v1"

// ExportHeader is the first line of an export file.
type ExportHeader struct {
	Format    string `json:"format"`
	CreatedAt int64  `json:"created_at"`
	Records   int    `json:"records"`
}

var (
	exportOut    string
	exportVerify bool
)

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "calibrations.jsonl.zst", "Output file")
	exportCmd.Flags().BoolVar(&exportVerify, "verify", false, "Read the file back and check the record count")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every calibration record as zstd-compressed JSON lines",
	RunE:  runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	records, err := db.ListRecords()
	if err != nil {
		return err
	}

	if err := writeExportFile(exportOut, records, time.Now().Unix()); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	fmt.Fprintf(os.Stderr, "exported %d records to %s\n", len(records), exportOut)

	if exportVerify {
		f, err := os.Open(exportOut)
		if err != nil {
			return err
		}
		defer f.Close()
		header, got, err := ReadExport(f)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		if header.Records != len(got) || len(got) != len(records) {
			return fmt.Errorf("verify: header says %d records, file has %d, store has %d", header.Records, len(got), len(records))
		}
		fmt.Fprintln(os.Stderr, "  verified")
	}
	return nil
}

func writeExportFile(path string, records []calibration.Record, now int64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := WriteExport(f, records, now); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteExport writes a header line followed by one JSON record per line,
// zstd-compressed.
func WriteExport(w io.Writer, records []calibration.Record, now int64) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)
	je := json.NewEncoder(bw)

	if err := je.Encode(ExportHeader{Format: exportFormat, CreatedAt: now, Records: len(records)}); err != nil {
		enc.Close()
		return fmt.Errorf("encode header: %w", err)
	}
	for _, r := range records {
		if err := je.Encode(r); err != nil {
			enc.Close()
			return fmt.Errorf("encode record %s: %w", r.Key(), err)
		}
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// ReadExport decodes a file written by WriteExport.
func ReadExport(r io.Reader) (ExportHeader, []calibration.Record, error) {
	var header ExportHeader
	dec, err := zstd.NewReader(r)
	if err != nil {
		return header, nil, err
	}
	defer dec.Close()

	jd := json.NewDecoder(bufio.NewReaderSize(dec, 64*1024))
	if err := jd.Decode(&header); err != nil {
		return header, nil, fmt.Errorf("decode header: %w", err)
	}
	if header.Format != exportFormat {
		return header, nil, fmt.Errorf("unknown export format %q", header.Format)
	}

	records := make([]calibration.Record, 0, header.Records)
	for jd.More() {
		var rec calibration.Record
		if err := jd.Decode(&rec); err != nil {
			return header, nil, fmt.Errorf("decode record %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
	return header, records, nil
}
