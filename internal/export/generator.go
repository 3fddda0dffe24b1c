package export

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/superwasp/vespa/internal/conf"
	"github.com/superwasp/vespa/internal/datastore"
	"github.com/superwasp/vespa/internal/errors"
	"github.com/superwasp/vespa/internal/logging"
	"github.com/superwasp/vespa/internal/metrics"
	"github.com/superwasp/vespa/internal/photometry"
)

const (
	// ArchiveFileName is the file name of every generated export archive.
	ArchiveFileName = "superwasp-vespa-export.zip"

	// progressInterval is how many rows pass between progress updates.
	progressInterval = 1000

	batchSize = 500
)

// Generator turns pending DataExport records into CSV/ZIP archives.
type Generator struct {
	store   datastore.Interface
	dir     string
	metrics *metrics.ExportMetrics
}

// NewGenerator creates a generator writing archives under the configured
// export directory.
func NewGenerator(store datastore.Interface, settings *conf.Settings, exportMetrics *metrics.ExportMetrics) *Generator {
	return &Generator{
		store:   store,
		dir:     settings.Export.Dir,
		metrics: exportMetrics,
	}
}

// Generate builds the archive for an export record. Re-running a Complete
// or Running export is a no-op; a Failed export is retried from scratch.
func (g *Generator) Generate(ctx context.Context, exportID uuid.UUID) error {
	logger := logging.ForService("export")

	exp, err := g.store.GetDataExport(exportID)
	if err != nil {
		return err
	}
	if exp.ExportStatus == datastore.ExportRunning || exp.ExportStatus == datastore.ExportComplete {
		logger.Info("export generation skipped",
			"export_id", exp.ID,
			"status", datastore.ExportStatusLabel(exp.ExportStatus))
		return nil
	}

	if err := g.store.UpdateExportStatus(exp.ID, datastore.ExportRunning); err != nil {
		return err
	}

	path, size, rows, err := g.generate(ctx, exp)
	if err != nil {
		if g.metrics != nil {
			g.metrics.ExportsFailed.Inc()
		}
		if statusErr := g.store.UpdateExportStatus(exp.ID, datastore.ExportFailed); statusErr != nil {
			logger.Error("failed export not marked failed", "export_id", exp.ID, "error", statusErr)
		}
		return err
	}

	if err := g.store.SetExportFile(exp.ID, path); err != nil {
		return err
	}
	if err := g.store.UpdateExportProgress(exp.ID, 100); err != nil {
		return err
	}
	if err := g.store.UpdateExportStatus(exp.ID, datastore.ExportComplete); err != nil {
		return err
	}

	if g.metrics != nil {
		g.metrics.ExportsGenerated.Inc()
		g.metrics.RowsWritten.Add(float64(rows))
		g.metrics.ArchiveSize.Observe(float64(size))
	}

	logger.Info("export archive generated",
		"export_id", exp.ID,
		"rows", rows,
		"size", humanize.Bytes(uint64(size)),
		"path", path)
	return nil
}

// generate writes the archive and returns its path, size and row count.
func (g *Generator) generate(ctx context.Context, exp *datastore.DataExport) (string, int64, int, error) {
	total, err := g.store.CountExportRows(exp)
	if err != nil {
		return "", 0, 0, err
	}

	dir := filepath.Join(g.dir, exp.ID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, 0, generateError(err, exp.ID, "create export directory")
	}
	path := filepath.Join(dir, ArchiveFileName)

	f, err := os.Create(path)
	if err != nil {
		return "", 0, 0, generateError(err, exp.ID, "create archive file")
	}
	defer f.Close()

	archive := zip.NewWriter(f)

	csvFile, err := archive.Create("export.csv")
	if err != nil {
		return "", 0, 0, generateError(err, exp.ID, "create export.csv")
	}
	w := csv.NewWriter(csvFile)
	if err := w.Write(Header()); err != nil {
		return "", 0, 0, generateError(err, exp.ID, "write csv header")
	}

	rows := 0
	err = g.store.ForEachExportRow(exp, batchSize, func(ac *datastore.AggregatedClassification) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rows%progressInterval == 0 && total > 0 {
			progress := float64(rows) / float64(total) * 100
			if err := g.store.UpdateExportProgress(exp.ID, progress); err != nil {
				return err
			}
		}
		record, err := exportRecord(ac)
		if err != nil {
			return err
		}
		if err := w.Write(record); err != nil {
			return generateError(err, exp.ID, "write csv row")
		}
		rows++
		return nil
	})
	if err != nil {
		return "", 0, 0, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", 0, 0, generateError(err, exp.ID, "flush csv")
	}

	fieldsFile, err := archive.Create("fields.yaml")
	if err != nil {
		return "", 0, 0, generateError(err, exp.ID, "create fields.yaml")
	}
	if err := writeFieldsYAML(fieldsFile); err != nil {
		return "", 0, 0, generateError(err, exp.ID, "write fields.yaml")
	}

	paramsFile, err := archive.Create("params.yaml")
	if err != nil {
		return "", 0, 0, generateError(err, exp.ID, "create params.yaml")
	}
	if err := writeParamsYAML(paramsFile, exp, total); err != nil {
		return "", 0, 0, generateError(err, exp.ID, "write params.yaml")
	}

	if err := archive.Close(); err != nil {
		return "", 0, 0, generateError(err, exp.ID, "close archive")
	}

	info, err := f.Stat()
	if err != nil {
		return "", 0, 0, generateError(err, exp.ID, "stat archive")
	}
	return path, info.Size(), rows, nil
}

// exportRecord formats one catalog row as CSV fields, in Fields order.
func exportRecord(ac *datastore.AggregatedClassification) ([]string, error) {
	star := &ac.FoldCandidate.Star

	coords, err := photometry.ParseDesignation(star.WaspID)
	if err != nil {
		return nil, err
	}

	// Plot and photometry file URLs are filled by the media pipeline; rows
	// whose images were never generated export empty URLs.
	return []string{
		star.WaspID,
		formatFloat(ac.FoldCandidate.PeriodLength),
		strconv.FormatFloat(coords.RAHours, 'f', -1, 64),
		strconv.FormatFloat(coords.DecDegrees, 'f', -1, 64),
		formatFloat(star.MaxMagnitude),
		formatFloat(star.MinMagnitude),
		formatFloat(star.MeanMagnitude),
		formatFloat(star.Amplitude),
		ac.Classification.String(),
		strconv.Itoa(ac.ClassificationCount),
		ac.PeriodUncertainty.String(),
		formatFloat(ac.FoldCandidate.Sigma),
		formatFloat(ac.FoldCandidate.ChiSquared),
		"",
		"",
		"",
		"",
	}, nil
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// writeFieldsYAML documents the CSV columns, preserving their order.
func writeFieldsYAML(w io.Writer) error {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, field := range Fields {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: field.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Value: field.Description},
		)
	}
	data, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// exportParams is the params.yaml document shape.
type exportParams struct {
	DataVersion        float64  `yaml:"data_version"`
	ObjectCount        int64    `yaml:"object_count"`
	MinPeriod          *float64 `yaml:"min_period"`
	MaxPeriod          *float64 `yaml:"max_period"`
	MinMagnitude       *float64 `yaml:"min_magnitude"`
	MaxMagnitude       *float64 `yaml:"max_magnitude"`
	MinAmplitude       *float64 `yaml:"min_amplitude"`
	MaxAmplitude       *float64 `yaml:"max_amplitude"`
	MinClassifications *int     `yaml:"min_classifications"`
	MaxClassifications *int     `yaml:"max_classifications"`
	CertainPeriod      bool     `yaml:"certain_period"`
	UncertainPeriod    bool     `yaml:"uncertain_period"`
	TypePulsator       bool     `yaml:"type_pulsator"`
	TypeRotator        bool     `yaml:"type_rotator"`
	TypeEW             bool     `yaml:"type_ew"`
	TypeEAEB           bool     `yaml:"type_eaeb"`
	TypeUnknown        bool     `yaml:"type_unknown"`
	Search             *string  `yaml:"search"`
	SearchRadius       *float64 `yaml:"search_radius"`
}

// writeParamsYAML records the export's release version, row count and
// filter parameters.
func writeParamsYAML(w io.Writer, exp *datastore.DataExport, total int64) error {
	data, err := yaml.Marshal(&exportParams{
		DataVersion:        exp.DataVersion,
		ObjectCount:        total,
		MinPeriod:          exp.MinPeriod,
		MaxPeriod:          exp.MaxPeriod,
		MinMagnitude:       exp.MinMagnitude,
		MaxMagnitude:       exp.MaxMagnitude,
		MinAmplitude:       exp.MinAmplitude,
		MaxAmplitude:       exp.MaxAmplitude,
		MinClassifications: exp.MinClassifications,
		MaxClassifications: exp.MaxClassifications,
		CertainPeriod:      exp.CertainPeriod,
		UncertainPeriod:    exp.UncertainPeriod,
		TypePulsator:       exp.TypePulsator,
		TypeRotator:        exp.TypeRotator,
		TypeEW:             exp.TypeEW,
		TypeEAEB:           exp.TypeEAEB,
		TypeUnknown:        exp.TypeUnknown,
		Search:             exp.Search,
		SearchRadius:       exp.SearchRadius,
	})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func generateError(err error, exportID uuid.UUID, operation string) error {
	return errors.New(err).
		Component("export").
		Category(errors.CategoryExport).
		Context("export_id", exportID.String()).
		Context("operation", operation).
		Build()
}
