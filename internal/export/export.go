// Package export turns a finished conversion result into downloadable byte
// buffers. It consumes the job controller's terminal state only.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/007jayesh/parsesaas-go/internal/convert"
)

// File is one exportable rendition of a conversion result.
type File struct {
	Name string
	MIME string
	Data []byte
}

var formatMIME = map[string]string{
	convert.FormatCSV:   "text/csv",
	convert.FormatExcel: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	convert.FormatJSON:  "application/json",
}

var formatExt = map[string]string{
	convert.FormatCSV:   ".csv",
	convert.FormatExcel: ".xlsx",
	convert.FormatJSON:  ".json",
}

// Files extracts the requested formats from a result. Formats the result
// carries no payload for are skipped; asking for nothing that is present is
// an error.
func Files(result *convert.Result, baseName string, formats []string) ([]File, error) {
	if result == nil {
		return nil, fmt.Errorf("export: no result")
	}
	base := strings.TrimSuffix(baseName, filepath.Ext(baseName))
	if base == "" {
		base = result.ConversionID
	}

	var files []File
	for _, format := range formats {
		data, ok, err := payload(result, format)
		if err != nil {
			return nil, err
		}
		if !ok {
			slog.Debug("result carries no payload for format", "format", format)
			continue
		}
		files = append(files, File{
			Name: base + formatExt[format],
			MIME: formatMIME[format],
			Data: data,
		})
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("export: result carries none of the requested formats %v", formats)
	}
	return files, nil
}

func payload(result *convert.Result, format string) ([]byte, bool, error) {
	switch format {
	case convert.FormatCSV:
		if result.CSVData == "" {
			return nil, false, nil
		}
		return []byte(result.CSVData), true, nil
	case convert.FormatExcel:
		if result.ExcelData == "" {
			return nil, false, nil
		}
		data, err := convert.DecodeFileData(result.ExcelData)
		if err != nil {
			return nil, false, fmt.Errorf("export excel: %w", err)
		}
		return data, true, nil
	case convert.FormatJSON:
		if len(result.JSONData) == 0 {
			return nil, false, nil
		}
		pretty, err := json.MarshalIndent(json.RawMessage(result.JSONData), "", "  ")
		if err != nil {
			return nil, false, fmt.Errorf("export json: %w", err)
		}
		return pretty, true, nil
	default:
		return nil, false, fmt.Errorf("export: unknown format %q", format)
	}
}

// WriteAll stores the files under dir, one write per file, concurrently.
func WriteAll(ctx context.Context, dir string, files []File) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, f := range files {
		f := f
		g.Go(func() error {
			path := filepath.Join(dir, f.Name)
			if err := os.WriteFile(path, f.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", f.Name, err)
			}
			slog.Info("exported", "file", path, "bytes", len(f.Data))
			return nil
		})
	}
	return g.Wait()
}
