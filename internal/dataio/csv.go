package dataio

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"regsim/internal/model"
)

const (
	predictedHeader = "predicted"
	coefHeader      = "coef"
)

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// WriteDataset writes the train and test partitions of ds.
func WriteDataset(l Layout, ds model.Dataset) error {
	p := ds.Features()
	if err := writeRows(l.TrainPath(ds.Replicate), ds.Train, p); err != nil {
		return fmt.Errorf("writing train partition of replicate %d: %w", ds.Replicate, err)
	}
	if err := writeRows(l.TestPath(ds.Replicate), ds.Test, p); err != nil {
		return fmt.Errorf("writing test partition of replicate %d: %w", ds.Replicate, err)
	}
	return nil
}

func writeRows(path string, rows []model.Row, p int) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := make([]string, 0, p+1)
	for j := 1; j <= p; j++ {
		header = append(header, "x"+strconv.Itoa(j))
	}
	header = append(header, "y")
	if err := w.Write(header); err != nil {
		return err
	}
	rec := make([]string, p+1)
	for i, row := range rows {
		if len(row.X) != p {
			return fmt.Errorf("row %d has %d features, want %d", i, len(row.X), p)
		}
		for j, x := range row.X {
			rec[j] = formatFloat(x)
		}
		rec[p] = formatFloat(row.Y)
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return WriteFileAtomic(path, buf.Bytes(), 0o644)
}

// ReadDataset reads both partitions of replicate r.
func ReadDataset(l Layout, r model.ReplicateID) (model.Dataset, error) {
	train, err := readRows(l.TrainPath(r))
	if err != nil {
		return model.Dataset{}, fmt.Errorf("reading train partition of replicate %d: %w", r, err)
	}
	test, err := readRows(l.TestPath(r))
	if err != nil {
		return model.Dataset{}, fmt.Errorf("reading test partition of replicate %d: %w", r, err)
	}
	ds := model.Dataset{Replicate: r, Train: train, Test: test}
	if len(train) > 0 && len(test) > 0 && len(train[0].X) != len(test[0].X) {
		return model.Dataset{}, fmt.Errorf("replicate %d: train has %d features, test has %d", r, len(train[0].X), len(test[0].X))
	}
	return ds, nil
}

func readRows(path string) ([]model.Row, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("missing header")
	}
	header := records[0]
	if len(header) < 2 || header[len(header)-1] != "y" {
		return nil, fmt.Errorf("unexpected header %v", header)
	}
	p := len(header) - 1
	rows := make([]model.Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != p+1 {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", i+2, p+1, len(rec))
		}
		vals, err := parseFloats(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		rows = append(rows, model.Row{X: vals[:p:p], Y: vals[p]})
	}
	return rows, nil
}

// WriteFitResult writes predictions and coefficients of fr.
func WriteFitResult(l Layout, fr model.FitResult) error {
	if err := writeColumn(l.PredictedPath(fr.Replicate, fr.Family), predictedHeader, fr.Predictions); err != nil {
		return fmt.Errorf("writing predictions for %d/%s: %w", fr.Replicate, fr.Family, err)
	}
	if err := writeColumn(l.CoefPath(fr.Replicate, fr.Family), coefHeader, fr.Coefficients); err != nil {
		return fmt.Errorf("writing coefficients for %d/%s: %w", fr.Replicate, fr.Family, err)
	}
	return nil
}

// ReadFitResult reads the predictions and coefficients of (r, f).
// Intercept and Lambda are not persisted and read back as zero.
func ReadFitResult(l Layout, r model.ReplicateID, f model.Family) (model.FitResult, error) {
	preds, err := readColumn(l.PredictedPath(r, f), predictedHeader)
	if err != nil {
		return model.FitResult{}, fmt.Errorf("reading predictions for %d/%s: %w", r, f, err)
	}
	coefs, err := readColumn(l.CoefPath(r, f), coefHeader)
	if err != nil {
		return model.FitResult{}, fmt.Errorf("reading coefficients for %d/%s: %w", r, f, err)
	}
	return model.FitResult{Replicate: r, Family: f, Predictions: preds, Coefficients: coefs}, nil
}

func writeColumn(path, header string, values []float64) error {
	var buf bytes.Buffer
	buf.WriteString(header)
	buf.WriteByte('\n')
	for _, v := range values {
		buf.WriteString(formatFloat(v))
		buf.WriteByte('\n')
	}
	return WriteFileAtomic(path, buf.Bytes(), 0o644)
}

func readColumn(path, header string) ([]float64, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || len(records[0]) != 1 || records[0][0] != header {
		return nil, fmt.Errorf("expected header %q", header)
	}
	out := make([]float64, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != 1 {
			return nil, fmt.Errorf("line %d: expected one value, got %d", i+2, len(rec))
		}
		v, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// WriteSummary writes the two-line error summary: prediction error first,
// coefficient error second.
func WriteSummary(l Layout, s model.ErrorSummary) error {
	data := formatFloat(s.PredictionError) + "\n" + formatFloat(s.CoefficientError) + "\n"
	if err := WriteFileAtomic(l.SummaryPath(s.Replicate, s.Family), []byte(data), 0o644); err != nil {
		return fmt.Errorf("writing summary for %d/%s: %w", s.Replicate, s.Family, err)
	}
	return nil
}

// ReadSummary reads the summary of (r, f). A missing file surfaces as an
// error satisfying errors.Is(err, fs.ErrNotExist).
func ReadSummary(l Layout, r model.ReplicateID, f model.Family) (model.ErrorSummary, error) {
	records, err := readCSV(l.SummaryPath(r, f))
	if err != nil {
		return model.ErrorSummary{}, fmt.Errorf("reading summary for %d/%s: %w", r, f, err)
	}
	if len(records) != 2 || len(records[0]) != 1 || len(records[1]) != 1 {
		return model.ErrorSummary{}, fmt.Errorf("summary for %d/%s: expected exactly two single-value lines", r, f)
	}
	pred, err := strconv.ParseFloat(records[0][0], 64)
	if err != nil {
		return model.ErrorSummary{}, fmt.Errorf("summary for %d/%s: prediction error: %w", r, f, err)
	}
	coef, err := strconv.ParseFloat(records[1][0], 64)
	if err != nil {
		return model.ErrorSummary{}, fmt.Errorf("summary for %d/%s: coefficient error: %w", r, f, err)
	}
	return model.ErrorSummary{Replicate: r, Family: f, PredictionError: pred, CoefficientError: coef}, nil
}

func readCSV(path string) ([][]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rd := csv.NewReader(bytes.NewReader(b))
	rd.FieldsPerRecord = -1
	var out [][]string
	for {
		rec, err := rd.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

func parseFloats(rec []string) ([]float64, error) {
	out := make([]float64, len(rec))
	for i, s := range rec {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// WriteFileAtomic writes and syncs data to a temp file in the target
// directory, then renames it over path. Parent directories are created as needed.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
