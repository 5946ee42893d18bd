package sync

import (
	"context"
	"fmt"

	"github.com/go-mysql-org/go-mysql/canal"
	"go.uber.org/zap"

	"customer-cqrs-service/internal/cache"
	"customer-cqrs-service/internal/config"
	"customer-cqrs-service/internal/logger"
)

// ChangeStream tails the write database's binlog and invalidates cache
// entries for rows changed outside the command path (bulk loads, manual
// fixes). It shrinks effective staleness but is optional: the scheduled
// reconciliation alone upholds the consistency contract.
type ChangeStream struct {
	cfg         config.DatabaseConnection
	canal       *canal.Canal
	invalidator *cache.Invalidator
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewChangeStream(cfg config.DatabaseConnection, invalidator *cache.Invalidator) (*ChangeStream, error) {
	c, err := canal.NewCanal(&canal.Config{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		User:     cfg.ReplicationUser,
		Password: cfg.ReplicationPassword,
		Flavor:   "mysql",
		ServerID: 100,
		Dump: canal.DumpConfig{
			ExecutionPath: "", // binlog only, no initial dump
		},
		IncludeTableRegex: []string{fmt.Sprintf("^%s\\.user_write$", cfg.Database)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create canal: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	cs := &ChangeStream{
		cfg:         cfg,
		canal:       c,
		invalidator: invalidator,
		ctx:         ctx,
		cancel:      cancel,
	}

	c.SetEventHandler(&rowHandler{stream: cs})
	return cs, nil
}

func (cs *ChangeStream) Start() {
	logger.Log.Info("Starting change stream", zap.String("host", cs.cfg.Host))

	go func() {
		if err := cs.canal.Run(); err != nil {
			logger.Log.Error("Change stream stopped with error", zap.Error(err))
		}
	}()
}

func (cs *ChangeStream) Stop() {
	cs.cancel()
	cs.canal.Close()
	logger.Log.Info("Stopped change stream")
}

type rowHandler struct {
	canal.DummyEventHandler
	stream *ChangeStream
}

func (h *rowHandler) OnRow(e *canal.RowsEvent) error {
	if e.Table.Name != "user_write" {
		return nil
	}

	select {
	case <-h.stream.ctx.Done():
		return h.stream.ctx.Err()
	default:
	}

	// userID is the first column of user_write.
	for _, row := range e.Rows {
		if len(row) == 0 {
			continue
		}
		id, ok := toInt64(row[0])
		if !ok {
			logger.Log.Warn("Change stream row with non-numeric key",
				zap.String("table", e.Table.Name))
			continue
		}
		h.stream.invalidator.InvalidateCustomer(h.stream.ctx, id)
	}
	return nil
}

func (h *rowHandler) String() string {
	return "CustomerChangeStreamHandler"
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint32:
		return int64(n), true
	default:
		return 0, false
	}
}
