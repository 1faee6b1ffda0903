package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fundeport/academy-api/internal/models"
	appErrors "github.com/fundeport/academy-api/pkg/errors"
	"github.com/fundeport/academy-api/pkg/export"
	"github.com/fundeport/academy-api/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type rosterSectionReader interface {
	FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error)
}

// RosterFormat selects the rendered export format.
type RosterFormat string

const (
	RosterFormatCSV RosterFormat = "csv"
	RosterFormatPDF RosterFormat = "pdf"
)

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       RosterFormat
	ExpiresAt    time.Time
}

// ExportService renders section rosters to downloadable files behind signed
// URLs.
type ExportService struct {
	sections rosterSectionReader
	roster   rosterReader
	storage  fileStorage
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
	cfg      ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(sections rosterSectionReader, roster rosterReader, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		sections: sections,
		roster:   roster,
		storage:  files,
		csv:      csv,
		pdf:      pdf,
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
	}
}

// GenerateRoster renders the section's ACTIVE roster and stores the file.
func (s *ExportService) GenerateRoster(ctx context.Context, sectionID string, format RosterFormat) (*ExportResult, error) {
	section, err := s.sections.FindDetailByID(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
	}

	roster, err := s.roster.ListActiveBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section roster")
	}

	dataset := buildRosterDataset(roster)
	title := fmt.Sprintf("Roster %s - %s", section.Code, section.Name)

	var payload []byte
	switch format {
	case RosterFormatCSV:
		payload, err = s.csv.Render(dataset)
	case RosterFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}

	filename := fmt.Sprintf("roster_%s_%s.%s", sanitizeFilename(section.Code), time.Now().UTC().Format("20060102_150405"), format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store roster file")
	}

	token, expiresAt, err := s.signer.Generate(sectionID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("roster exported",
		zap.String("section_id", sectionID),
		zap.String("format", string(format)),
		zap.Int("rows", len(roster)),
	)
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (sectionID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func buildRosterDataset(roster []models.EnrollmentDetail) export.Dataset {
	rows := make([][]string, 0, len(roster))
	for _, e := range roster {
		grade := ""
		if e.FinalGrade != nil {
			grade = fmt.Sprintf("%.2f", *e.FinalGrade)
		}
		rows = append(rows, []string{
			e.StudentCode,
			e.StudentName,
			string(e.Status),
			e.EnrolledAt.UTC().Format("2006-01-02"),
			grade,
		})
	}
	return export.Dataset{
		Columns: []string{"Student Code", "Student", "Status", "Enrolled At", "Final Grade"},
		Rows:    rows,
	}
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
