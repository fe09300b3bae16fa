package handlers

import (
	"context"
	"encoding/csv"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"exameye/shield/internal/database"
)

type exportData struct {
	Generated       time.Time
	TotalStudents   int
	TotalSessions   int
	TotalViolations int
	TypeCounts      []typeCount
	StudentCounts   []studentCount
}

type typeCount struct {
	Type  string
	Count int
}

type studentCount struct {
	StudentID   string
	StudentName string
	Count       int
}

func loadExportData(ctx context.Context) (*exportData, error) {
	data := &exportData{Generated: time.Now().UTC()}

	err := database.DB.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM students),
			(SELECT count(*) FROM exam_sessions),
			(SELECT count(*) FROM violations)`,
	).Scan(&data.TotalStudents, &data.TotalSessions, &data.TotalViolations)
	if err != nil {
		return nil, err
	}

	rows, err := database.DB.QueryContext(ctx,
		"SELECT violation_type, count(*) FROM violations GROUP BY violation_type")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var tc typeCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			continue
		}
		data.TypeCounts = append(data.TypeCounts, tc)
	}

	srows, err := database.DB.QueryContext(ctx,
		"SELECT student_id, student_name, count(*) FROM violations GROUP BY student_id, student_name")
	if err != nil {
		return nil, err
	}
	defer srows.Close()
	for srows.Next() {
		var sc studentCount
		if err := srows.Scan(&sc.StudentID, &sc.StudentName, &sc.Count); err != nil {
			continue
		}
		data.StudentCounts = append(data.StudentCounts, sc)
	}

	// Breakdown alphabetical, students by violation count descending, as in
	// the operator-facing report.
	sort.Slice(data.TypeCounts, func(i, j int) bool {
		return data.TypeCounts[i].Type < data.TypeCounts[j].Type
	})
	sort.Slice(data.StudentCounts, func(i, j int) bool {
		return data.StudentCounts[i].Count > data.StudentCounts[j].Count
	})

	return data, nil
}

// ExportSummaryCSV streams the proctoring summary report as CSV.
func (h *Handlers) ExportSummaryCSV(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	data, err := loadExportData(ctx)
	if err != nil {
		log.Printf("Summary CSV export error: %v", err)
		http.Error(w, "Failed to generate report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="summary.csv"`)

	fmt.Fprintf(w, "EXAM PROCTORING SUMMARY REPORT\n")
	fmt.Fprintf(w, "Generated: %s\n\n", data.Generated.Format(time.RFC3339))

	fmt.Fprintf(w, "OVERALL STATISTICS\n")
	fmt.Fprintf(w, "Total Students,%d\n", data.TotalStudents)
	fmt.Fprintf(w, "Total Sessions,%d\n", data.TotalSessions)
	fmt.Fprintf(w, "Total Violations,%d\n\n", data.TotalViolations)

	fmt.Fprintf(w, "VIOLATION BREAKDOWN\n")
	cw := csv.NewWriter(w)
	cw.Write([]string{"Violation Type", "Count"})
	for _, tc := range data.TypeCounts {
		cw.Write([]string{tc.Type, strconv.Itoa(tc.Count)})
	}
	cw.Flush()

	fmt.Fprintf(w, "\nSTUDENT-WISE SUMMARY\n")
	cw = csv.NewWriter(w)
	cw.Write([]string{"Student ID", "Student Name", "Total Violations"})
	for _, sc := range data.StudentCounts {
		cw.Write([]string{sc.StudentID, sc.StudentName, strconv.Itoa(sc.Count)})
	}
	cw.Flush()
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Exam Proctoring Report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        h1 { color: #333; border-bottom: 2px solid #333; padding-bottom: 10px; }
        h2 { color: #666; margin-top: 30px; }
        table { border-collapse: collapse; width: 100%; margin: 20px 0; }
        th, td { border: 1px solid #ddd; padding: 12px; text-align: left; }
        th { background-color: #4CAF50; color: white; }
        tr:nth-child(even) { background-color: #f2f2f2; }
        .stat-box { display: inline-block; margin: 10px; padding: 20px; border: 2px solid #4CAF50; border-radius: 5px; min-width: 150px; }
        .stat-number { font-size: 36px; font-weight: bold; color: #4CAF50; }
        .stat-label { color: #666; font-size: 14px; }
    </style>
</head>
<body>
    <h1>Exam Proctoring Summary Report</h1>
    <p><strong>Generated:</strong> {{.Generated.Format "2006-01-02 15:04:05 UTC"}}</p>

    <h2>Overall Statistics</h2>
    <div class="stat-box">
        <div class="stat-number">{{.TotalStudents}}</div>
        <div class="stat-label">Total Students</div>
    </div>
    <div class="stat-box">
        <div class="stat-number">{{.TotalSessions}}</div>
        <div class="stat-label">Total Sessions</div>
    </div>
    <div class="stat-box">
        <div class="stat-number">{{.TotalViolations}}</div>
        <div class="stat-label">Total Violations</div>
    </div>

    <h2>Violation Breakdown</h2>
    <table>
        <tr><th>Violation Type</th><th>Count</th></tr>
        {{range .TypeCounts}}<tr><td>{{.Type}}</td><td>{{.Count}}</td></tr>
        {{end}}
    </table>

    <h2>Student-wise Summary</h2>
    <table>
        <tr><th>Student ID</th><th>Student Name</th><th>Total Violations</th></tr>
        {{range .StudentCounts}}<tr><td>{{.StudentID}}</td><td>{{.StudentName}}</td><td>{{.Count}}</td></tr>
        {{end}}
    </table>
</body>
</html>
`))

// ExportReportHTML renders the printable summary report.
func (h *Handlers) ExportReportHTML(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	data, err := loadExportData(ctx)
	if err != nil {
		log.Printf("HTML report generation error: %v", err)
		http.Error(w, "Failed to generate report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := reportTemplate.Execute(w, data); err != nil {
		log.Printf("HTML report render error: %v", err)
	}
}
