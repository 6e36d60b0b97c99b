package app

import (
	"fmt"

	"github.com/yungbote/testbridge-backend/internal/data/softdelete"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
	"github.com/yungbote/testbridge-backend/internal/platform/sendgrid"
	"github.com/yungbote/testbridge-backend/internal/realtime/bus"
)

type Clients struct {
	Bus          bus.Bus
	PreviewCache softdelete.Cache
	Mail         sendgrid.Client
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	b, err := bus.New(bus.Config{RedisAddr: cfg.RedisAddr, Channel: cfg.RedisChannel}, log)
	if err != nil {
		return Clients{}, fmt.Errorf("init notification bus: %w", err)
	}

	// Previews must be visible to every instance once redis is shared.
	cache := softdelete.NewLRUCache(4096, cfg.ArchivePreviewTTL)
	if rdb := bus.Redis(b); rdb != nil {
		cache = softdelete.NewRedisCache(rdb, "testbridge:archive-preview:")
	}

	var mail sendgrid.Client
	if cfg.SendGridEnabled {
		mail, err = sendgrid.New(log, cfg.SendGrid)
		if err != nil {
			_ = b.Close()
			return Clients{}, fmt.Errorf("init sendgrid client: %w", err)
		}
	} else {
		log.Warn("SENDGRID_API_KEY not set; email notifications disabled")
	}

	return Clients{Bus: b, PreviewCache: cache, Mail: mail}, nil
}
