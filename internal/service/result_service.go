package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stemsi/examquest-backend/internal/model"
	"github.com/stemsi/examquest-backend/internal/response"
	"github.com/xuri/excelize/v2"
)

// exportLimit caps how many results a single spreadsheet export reads.
const exportLimit = 5000

// ResultService serves a student's exam history.
type ResultService struct {
	results ResultStore
	log     zerolog.Logger
}

// NewResultService creates a new ResultService.
func NewResultService(results ResultStore, log zerolog.Logger) *ResultService {
	return &ResultService{
		results: results,
		log:     log.With().Str("component", "result_service").Logger(),
	}
}

// ListByStudent returns a page of the student's results, newest first.
func (s *ResultService) ListByStudent(ctx context.Context, studentID string, page, perPage int) ([]model.Result, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	limit := perPage
	offset := (page - 1) * perPage

	results, total, err := s.results.ListByStudentPaginated(ctx, studentID, limit, offset)
	if err != nil {
		return nil, nil, err
	}

	if results == nil {
		results = []model.Result{}
	}

	totalPages := (total + perPage - 1) / perPage

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	}

	return results, pagination, nil
}

// Get returns one result owned by studentID. Results of other students are not found.
func (s *ResultService) Get(ctx context.Context, studentID, resultID string) (*model.Result, error) {
	res, err := s.results.GetByID(ctx, resultID)
	if err != nil {
		return nil, err
	}
	if res.StudentID != studentID {
		return nil, model.ErrNotFound
	}
	return res, nil
}

// ExportXLSX renders the student's history as a spreadsheet.
func (s *ResultService) ExportXLSX(ctx context.Context, studentID string) ([]byte, error) {
	results, _, err := s.results.ListByStudentPaginated(ctx, studentID, exportLimit, 0)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	headers := []string{"result_id", "exam_title", "score", "total_points", "percentage", "time_taken_seconds", "completed_at"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, r := range results {
		row := i + 2
		values := []any{
			r.ID,
			r.ExamTitle,
			r.Score,
			r.TotalPoints,
			r.Percentage,
			r.TimeTakenSeconds,
			r.CompletedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "G", 22)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}

	s.log.Debug().Str("student_id", studentID).Int("rows", len(results)).Msg("Exported results")
	return buf.Bytes(), nil
}

// ProfileService reads gamification profiles.
type ProfileService struct {
	profiles ProfileStore
}

// NewProfileService creates a new ProfileService.
func NewProfileService(profiles ProfileStore) *ProfileService {
	return &ProfileService{profiles: profiles}
}

// Get returns the student's profile. A student without one yet starts at level 1.
func (s *ProfileService) Get(ctx context.Context, userID, displayName string) (*model.Profile, error) {
	p, err := s.profiles.GetByUserID(ctx, userID)
	if errors.Is(err, model.ErrNotFound) {
		return &model.Profile{
			UserID:      userID,
			DisplayName: displayName,
			Role:        "student",
			Level:       model.LevelForPoints(0),
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
