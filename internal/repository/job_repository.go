package repository

import (
	"patrasaar-go/internal/model"

	"gorm.io/gorm"
)

// JobRepository defines operations on processing jobs.
type JobRepository interface {
	Create(job *model.ProcessingJob) error
	FindByIDForUser(jobID, userID string) (*model.ProcessingJob, error)
	Update(jobID, status string, progress int, errorMessage string) error
}

type jobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a JobRepository backed by gorm.
func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{db: db}
}

func (r *jobRepository) Create(job *model.ProcessingJob) error {
	return r.db.Create(job).Error
}

// FindByIDForUser resolves a job through its document, so callers can only
// poll jobs for documents they own.
func (r *jobRepository) FindByIDForUser(jobID, userID string) (*model.ProcessingJob, error) {
	var job model.ProcessingJob
	err := r.db.
		Joins("JOIN documents ON documents.id = processing_jobs.document_id").
		Where("processing_jobs.id = ? AND documents.user_id = ?", jobID, userID).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Update writes one state-machine transition.
func (r *jobRepository) Update(jobID, status string, progress int, errorMessage string) error {
	return r.db.Model(&model.ProcessingJob{}).Where("id = ?", jobID).Updates(map[string]interface{}{
		"status":        status,
		"progress":      progress,
		"error_message": errorMessage,
	}).Error
}
