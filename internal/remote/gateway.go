package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"ridesync/internal/models"
)

const (
	preferUpsert = "resolution=merge-duplicates,return=minimal"
	// Booking ids are assigned locally, so an existing row can only be an
	// earlier delivery of the same insert.
	preferInsertOnce = "resolution=ignore-duplicates,return=minimal"
	preferMinimal    = "return=minimal"
)

// Apply performs the remote write described by item.
func (c *Client) Apply(ctx context.Context, item models.QueueItem) error {
	start := time.Now()
	req, err := buildWrite(item)
	if err != nil {
		return err
	}

	if _, err := c.do(ctx, req); err != nil {
		we := writeError(item.OperationKind, err)
		c.logger.Debug().Err(err).Int64("seq", item.SequenceID).Str("class", string(we.Class)).Msg("remote write failed")
		return we
	}

	c.logger.Debug().Int64("seq", item.SequenceID).Str("kind", string(item.OperationKind)).Dur("took", time.Since(start)).Msg("remote write applied")
	return nil
}

func buildWrite(item models.QueueItem) (request, error) {
	switch item.OperationKind {
	case models.OpUpsertUser:
		return request{
			method: http.MethodPost,
			table:  "users",
			query:  url.Values{"on_conflict": {"id"}},
			body:   item.Payload,
			prefer: preferUpsert,
		}, nil
	case models.OpUpsertTrip:
		return request{
			method: http.MethodPost,
			table:  "trips",
			body:   item.Payload,
			prefer: preferUpsert,
		}, nil
	case models.OpCreateBooking:
		return request{
			method: http.MethodPost,
			table:  "bookings",
			query:  url.Values{"on_conflict": {"id"}},
			body:   item.Payload,
			prefer: preferInsertOnce,
		}, nil
	case models.OpUpdateBooking:
		if item.TargetID == "" {
			return request{}, &WriteError{Class: ClassRejected, Op: item.OperationKind, Err: fmt.Errorf("missing target id")}
		}
		return request{
			method: http.MethodPatch,
			table:  "bookings",
			query:  url.Values{"id": {"eq." + item.TargetID}},
			body:   item.Payload,
			prefer: preferMinimal,
		}, nil
	default:
		return request{}, &WriteError{Class: ClassRejected, Op: item.OperationKind, Err: fmt.Errorf("unknown operation kind")}
	}
}
