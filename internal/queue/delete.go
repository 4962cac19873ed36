package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/policygraph/pkg/logger"
	graphstorage "github.com/OFFIS-RIT/policygraph/pkg/store/pgx"
)

// ProcessDeleteMessage removes a graph from PostgreSQL and object storage.
// Deleting a graph that is already gone succeeds.
func (w *Worker) ProcessDeleteMessage(ctx context.Context, body []byte) error {
	var msg DeleteGraphMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: invalid delete message: %v", ErrPermanent, err)
	}
	if msg.GraphID == "" {
		return fmt.Errorf("%w: delete message without graph_id", ErrPermanent)
	}

	opts := jobLease
	opts.Wait = true
	return w.Locker.Do(ctx, "graph:"+msg.GraphID, opts, func(ctx context.Context) error {
		if err := w.Jobs.DeleteGraph(ctx, msg.GraphID); err != nil && !errors.Is(err, graphstorage.ErrGraphNotFound) {
			return err
		}
		if err := w.Blobs.DeleteGraph(ctx, msg.GraphID); err != nil {
			return err
		}
		w.publish(TopicGraphDeleted, GraphEvent{GraphID: msg.GraphID, Status: "deleted"})
		logger.Info("[Queue] Graph deleted", "graph_id", msg.GraphID)
		return nil
	})
}
