package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/bankrec_backend/models"
	"gorm.io/gorm"
)

type partnerReader struct {
	db *gorm.DB
}

func (r *partnerReader) getPartners(ctx context.Context, ids []int) []*dataloader.Result[*models.Partner] {
	var results []models.Partner
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error
	if err != nil {
		return handleError[*models.Partner](len(ids), err)
	}
	return generateLoaderResults(results, ids, func(p models.Partner) int { return p.ID })
}

func GetPartner(ctx context.Context, id int) (*models.Partner, error) {
	loaders := For(ctx)
	return loaders.PartnerLoader.Load(ctx, id)()
}

func GetPartners(ctx context.Context, ids []int) ([]*models.Partner, []error) {
	loaders := For(ctx)
	return loaders.PartnerLoader.LoadMany(ctx, ids)()
}
