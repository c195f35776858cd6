package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"assessment-backend/internal/assessments"
)

func TestPGRepoCreateInsertsProjectInfo(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	job := Job{
		ID:       "job-1",
		Query:    "rewire consumer unit",
		WorkType: assessments.WorkTypeDomestic,
		ProjectInfo: ProjectInfo{
			ProjectName: "Unit 4 rewire",
			Location:    "Leeds",
		},
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO jobs").
		WithArgs(
			job.ID,
			job.Query,
			"domestic",
			"Unit 4 rewire",
			"Leeds",
			nil, // client_name
			"pending",
			0,
			nil, // current_step
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByIDScansResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	now := time.Now().UTC()
	resultJSON := []byte(`{"hazards":[{"text":"Live conductors","likelihood":4,"severity":5,"riskScore":20,"controlMeasure":"Isolate and lock off","regulation":"BS 7671"}],"ppe":[],"procedures":[]}`)

	cols := []string{
		"id", "query", "work_type", "project_name", "location", "client_name",
		"status", "progress", "current_step", "result", "error_code", "error_message",
		"created_at", "started_at", "completed_at", "updated_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM jobs").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"job-1", "rewire consumer unit", "domestic", "Unit 4 rewire", nil, nil,
			"complete", 100, "Finalising assessment", resultJSON, nil, nil,
			now, now, now, now,
		))

	job, err := repo.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != StatusComplete || job.Progress != 100 {
		t.Fatalf("unexpected job: status=%s progress=%d", job.Status, job.Progress)
	}
	if job.Result == nil || len(job.Result.Hazards) != 1 {
		t.Fatalf("expected decoded result, got %+v", job.Result)
	}
	if job.Result.Hazards[0].RiskScore != 20 {
		t.Fatalf("unexpected risk score %d", job.Result.Hazards[0].RiskScore)
	}
	if job.ProjectInfo.ProjectName != "Unit 4 rewire" || job.ProjectInfo.Location != "" {
		t.Fatalf("unexpected project info %+v", job.ProjectInfo)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	mock.ExpectQuery("SELECT (.+) FROM jobs").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoUpdateProgressNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	mock.ExpectExec("UPDATE jobs").
		WithArgs("missing", 35, "Identifying hazards and controls").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.UpdateProgress(context.Background(), "missing", 35, "Identifying hazards and controls"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoUpdateStatusMarshalsResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	doc := &assessments.Document{
		Hazards: []assessments.Hazard{{Text: "Working at height", Likelihood: 3, Severity: 4, RiskScore: 12}},
	}
	completedAt := time.Now().UTC()

	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-1", "complete", sqlmock.AnyArg(), nil, nil, nil, completedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateStatus(context.Background(), "job-1", StatusComplete, doc, nil, nil, nil, &completedAt); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
