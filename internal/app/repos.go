package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/data/aggregates"
	"github.com/yungbote/testbridge-backend/internal/observability"
	"github.com/yungbote/testbridge-backend/internal/platform/blob"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
	"github.com/yungbote/testbridge-backend/internal/services"
)

// wireRepos builds the repository set and the stores every service shares.
func wireRepos(db *gorm.DB, log *logger.Logger, cfg Config, blobs blob.Store, metrics *observability.Metrics) *services.Core {
	var hooks aggregates.Hooks
	if metrics != nil {
		hooks = aggregates.NewObservabilityHooks(metrics)
	}
	return services.NewCore(db, log, blobs, cfg.Thumbnails, hooks)
}
