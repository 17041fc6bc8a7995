package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/dto"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/models"
	appErrors "github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/errors"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/export"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/phone"
)

type outreachSource interface {
	ListWithVoter(ctx context.Context, filter models.ReferenceFilter) ([]models.ReferenceWithVoter, error)
}

type tableRenderer interface {
	Render(t export.Table) ([]byte, error)
}

// ExportFile is a rendered report ready to be streamed to the client.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders the admin outreach report. Contacts are always masked.
type ExportService struct {
	refs   outreachSource
	csv    tableRenderer
	pdf    tableRenderer
	logger *zap.Logger
	now    func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the defaults.
func NewExportService(refs outreachSource, csv, pdf tableRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{refs: refs, csv: csv, pdf: pdf, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

var outreachColumns = []export.Column{
	{Key: "voter", Label: "Voter", Width: 50},
	{Key: "reference", Label: "Reference", Width: 55},
	{Key: "contact", Label: "Contact", Width: 30},
	{Key: "status", Label: "Status", Width: 28},
	{Key: "whatsapp", Label: "WhatsApp", Width: 22},
	{Key: "notifiedAt", Label: "Notified At", Width: 36},
	{Key: "createdAt", Label: "Submitted At"},
}

// Outreach renders references matching query in the requested format.
func (s *ExportService) Outreach(ctx context.Context, format dto.ExportFormat, query dto.ReferenceQuery) (*ExportFile, error) {
	format = dto.ExportFormat(strings.ToLower(string(format)))
	if format == "" {
		format = dto.ExportFormatCSV
	}
	if format != dto.ExportFormatCSV && format != dto.ExportFormatPDF {
		return nil, appErrors.Validation("invalid export format", []appErrors.FieldError{{Field: "format", Message: "must be csv or pdf"}})
	}

	rows, err := s.refs.ListWithVoter(ctx, models.ReferenceFilter{UserID: query.UserID, Status: query.Status, WhatsappSent: query.WhatsappSent})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load references")
	}

	generatedAt := s.now()
	table := export.Table{
		Title:       "Reference Outreach Report",
		Columns:     outreachColumns,
		Rows:        make([]map[string]string, 0, len(rows)),
		GeneratedAt: generatedAt,
	}
	for _, row := range rows {
		whatsapp := "no"
		notified := ""
		if row.WhatsappSent {
			whatsapp = "yes"
		}
		if row.WhatsappSentAt != nil {
			notified = row.WhatsappSentAt.UTC().Format(time.RFC3339)
		}
		table.Rows = append(table.Rows, map[string]string{
			"voter":      row.VoterName,
			"reference":  row.ReferenceName,
			"contact":    phone.Mask(row.ReferenceContact),
			"status":     string(row.Status),
			"whatsapp":   whatsapp,
			"notifiedAt": notified,
			"createdAt":  row.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	renderer, contentType := s.csv, "text/csv"
	if format == dto.ExportFormatPDF {
		renderer, contentType = s.pdf, "application/pdf"
	}
	body, err := renderer.Render(table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}
	s.logger.Info("outreach report exported", zap.String("format", string(format)), zap.Int("rows", len(rows)))

	return &ExportFile{
		Filename:    fmt.Sprintf("reference-outreach-%s.%s", generatedAt.Format("20060102-150405"), format),
		ContentType: contentType,
		Body:        body,
	}, nil
}
