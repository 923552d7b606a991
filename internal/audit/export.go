package audit

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"
)

// WriteCSV renders records as CSV for regulator hand-off.
func WriteCSV(rows []Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"id", "created_at", "action", "resource", "resource_id", "actor_id", "actor_email", "actor_role", "ip", "session_id", "description", "success", "error", "sensitivity"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, rec := range rows {
		resourceID := ""
		if rec.ResourceID != nil {
			resourceID = strconv.FormatInt(*rec.ResourceID, 10)
		}
		record := []string{
			rec.ID,
			rec.CreatedAt.UTC().Format(time.RFC3339),
			string(rec.Action),
			string(rec.Resource),
			resourceID,
			strconv.FormatInt(rec.ActorID, 10),
			rec.ActorEmail,
			rec.ActorRole,
			rec.IP,
			rec.SessionID,
			rec.Description,
			strconv.FormatBool(rec.Success),
			rec.ErrorMsg,
			string(rec.Sensitivity),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
