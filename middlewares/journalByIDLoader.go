package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/bankrec_backend/models"
	"gorm.io/gorm"
)

type journalByIDReader struct {
	db *gorm.DB
}

func (r *journalByIDReader) getJournalsByID(ctx context.Context, ids []int) []*dataloader.Result[*models.Journal] {
	var results []models.Journal
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error
	if err != nil {
		return handleError[*models.Journal](len(ids), err)
	}
	return generateLoaderResults(results, ids, func(j models.Journal) int { return j.ID })
}

func GetJournal(ctx context.Context, id int) (*models.Journal, error) {
	loaders := For(ctx)
	return loaders.journalByIDLoader.Load(ctx, id)()
}
