package middlewares

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/bankrec_backend/config"
	"github.com/mmdatafocus/bankrec_backend/models"
	"gorm.io/gorm"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

// Loaders batch the lookups made while rendering widget sessions: every proposal line
// names an account and maybe a partner, and the header names the journal.
type Loaders struct {
	AccountLoader     *dataloader.Loader[int, *models.Account]
	PartnerLoader     *dataloader.Loader[int, *models.Partner]
	journalByIDLoader *dataloader.Loader[int, *models.Journal]
}

func NewLoaders(conn *gorm.DB) *Loaders {
	accountReader := &accountReader{db: conn}
	partnerReader := &partnerReader{db: conn}
	journalByIDReader := &journalByIDReader{db: conn}

	return &Loaders{
		AccountLoader:     dataloader.NewBatchedLoader(accountReader.getAccounts, dataloader.WithWait[int, *models.Account](time.Millisecond)),
		PartnerLoader:     dataloader.NewBatchedLoader(partnerReader.getPartners, dataloader.WithWait[int, *models.Partner](time.Millisecond)),
		journalByIDLoader: dataloader.NewBatchedLoader(journalByIDReader.getJournalsByID, dataloader.WithWait[int, *models.Journal](time.Millisecond)),
	}
}

func LoaderMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		loader := NewLoaders(config.GetDB())
		ctx := context.WithValue(c.Request.Context(), loadersKey, loader)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// WithLoaders attaches loaders outside gin (CLI, tests).
func WithLoaders(ctx context.Context, loaders *Loaders) context.Context {
	return context.WithValue(ctx, loadersKey, loaders)
}

func For(ctx context.Context) *Loaders {
	return ctx.Value(loadersKey).(*Loaders)
}

// handleError creates array of result with the same error repeated for as many items requested
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}

// generateLoaderResults orders rows by the requested ids; ids with no row get gorm.ErrRecordNotFound.
func generateLoaderResults[T any](results []T, ids []int, idOf func(T) int) []*dataloader.Result[*T] {
	resultMap := make(map[int]*T, len(results))
	for i := range results {
		resultMap[idOf(results[i])] = &results[i]
	}

	loaderResults := make([]*dataloader.Result[*T], 0, len(ids))
	for _, id := range ids {
		if v, ok := resultMap[id]; ok {
			loaderResults = append(loaderResults, &dataloader.Result[*T]{Data: v})
		} else {
			loaderResults = append(loaderResults, &dataloader.Result[*T]{Error: gorm.ErrRecordNotFound})
		}
	}
	return loaderResults
}
