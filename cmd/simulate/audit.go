package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// auditCheckIns reads each appointment's history and returns how many hold
// more than one CHECKED_IN row. Unreadable histories are logged and skipped.
func auditCheckIns(ctx context.Context, c *apiClient, ids []uuid.UUID, log zerolog.Logger) (int, error) {
	dupes := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return dupes, err
		}

		var rows []struct {
			NewStatus string `json:"new_status"`
		}
		code, err := c.do(ctx, http.MethodGet, "/api/v1/appointments/"+id.String()+"/history", nil, &rows)
		if err == nil && code != http.StatusOK {
			err = fmt.Errorf("status %d", code)
		}
		if err != nil {
			log.Warn().Err(err).Str("appointment_id", id.String()).Msg("history read failed")
			continue
		}

		checkIns := 0
		for _, r := range rows {
			if r.NewStatus == "CHECKED_IN" {
				checkIns++
			}
		}
		if checkIns > 1 {
			dupes++
			log.Error().Str("appointment_id", id.String()).Int("check_ins", checkIns).Msg("duplicate check-in")
		}
	}
	return dupes, nil
}
