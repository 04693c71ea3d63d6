package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

// Header is the fixed column layout of the CSV export.
var Header = []string{"Student", "Subject", "Class", "Total Lessons", "Presences", "Frequency(%)", "Grade Average", "Total Grades"}

// NotAvailable stands for an average without grades.
const NotAvailable = "N/A"

func formatFloat(f float64) string {
	return strconv.FormatFloat(core.Round2(f), 'f', -1, 64)
}

// WriteCSV writes the header then one record per row.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	for _, row := range rows {
		avg := NotAvailable
		if row.Average != nil {
			avg = formatFloat(*row.Average)
		}
		record := []string{
			row.StudentName,
			row.SubjectName,
			row.ClassName,
			strconv.Itoa(row.TotalLessons),
			strconv.Itoa(row.Presences),
			formatFloat(row.Frequency),
			avg,
			strconv.Itoa(row.TotalGrades),
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrap(err, "writing csv record")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}
