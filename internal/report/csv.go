// Package report renders attendance exports.
package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"classattend/internal/attendance"
)

var detailHeader = []string{"date", "start_time", "session_id", "student_id", "student_name", "status", "checkin_time", "note"}

// WriteDetailCSV writes one row per session and student.
func WriteDetailCSV(w io.Writer, rows []attendance.DetailRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(detailHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{r.Date, r.StartTime, r.SessionID, r.StudentID, r.StudentName, string(r.Status), "", ""}
		if r.CheckinTime != nil {
			rec[6] = r.CheckinTime.UTC().Format(time.RFC3339)
		}
		if r.Note != nil {
			rec[7] = *r.Note
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var summaryHeader = []string{"student_id", "name", "present", "late", "absent", "excused", "total_sessions", "attendance_rate"}

// WriteSummaryCSV writes one row per enrolled student.
func WriteSummaryCSV(w io.Writer, rows []attendance.StudentSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryHeader); err != nil {
		return err
	}
	for _, s := range rows {
		rec := []string{
			s.StudentID,
			s.Name,
			strconv.Itoa(s.Present),
			strconv.Itoa(s.Late),
			strconv.Itoa(s.Absent),
			strconv.Itoa(s.Excused),
			strconv.Itoa(s.TotalSessions),
			strconv.FormatFloat(s.AttendanceRate, 'f', 2, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
