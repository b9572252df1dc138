package state

import (
	"io"
	"time"

	"github.com/ShayCichocki/waypoint/internal/dispatch"
	"github.com/ShayCichocki/waypoint/internal/gateway"
	"github.com/ShayCichocki/waypoint/pkg/models"
)

// QueueStore handles persistence of the gateway replay queue.
type QueueStore interface {
	SaveQueuedCall(call models.QueuedCall) error
	DeleteQueuedCall(id string) error
	LoadQueuedCalls() ([]models.QueuedCall, error)
	CountQueuedCalls() (int, error)
}

// HistoryStore handles persistence of dispatch outcomes.
type HistoryStore interface {
	RecordDispatch(req *models.Request, resp *models.Response) error
	RecentDispatches(limit int) ([]DispatchRecord, error)
	SummarizeDispatches() ([]DispatchSummary, error)
	PurgeDispatchLog(olderThan time.Duration) (int64, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	Migrate() error
}

// StateStore composes every persistence concern.
type StateStore interface {
	io.Closer
	Migrator
	QueueStore
	HistoryStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ StateStore         = (*DB)(nil)
	_ gateway.QueueStore = (*DB)(nil)
	_ dispatch.History   = (*DB)(nil)
)
