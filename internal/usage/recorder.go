package usage

import (
	"log"

	"ragchat/internal/model"
	"ragchat/internal/repository"
)

// Recorder persists usage records best-effort. A failed write is logged and
// discarded; recording must never break the completion flow it rides on.
type Recorder struct {
	repo *repository.UsageRepository
}

func NewRecorder(repo *repository.UsageRepository) *Recorder {
	return &Recorder{repo: repo}
}

func (r *Recorder) Record(rec model.UsageRecord) {
	if r == nil || r.repo == nil {
		return
	}
	if err := r.repo.Insert(&rec); err != nil {
		log.Printf("usage record discarded: %v", err)
	}
}
