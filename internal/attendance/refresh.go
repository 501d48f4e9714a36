package attendance

import (
	"context"

	"go.uber.org/zap"

	"attendly/internal/queue"
)

// Consume rewarms cached reports from attendance.marked events until msgs
// closes or ctx ends. Other message types are skipped.
func (r *Reporter) Consume(ctx context.Context, msgs <-chan queue.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if msg.Type != EventMarked {
				continue
			}
			evt, err := DecodeMarkedEvent(msg)
			if err != nil {
				r.log.Warn("dropping malformed event", zap.String("type", msg.Type), zap.Error(err))
				continue
			}
			if _, err := r.Refresh(ctx, evt.StudentID); err != nil {
				r.log.Warn("report refresh failed", zap.String("student_id", evt.StudentID), zap.Error(err))
				continue
			}
			r.log.Debug("report refreshed", zap.String("student_id", evt.StudentID), zap.String("record_id", evt.RecordID))
		}
	}
}
