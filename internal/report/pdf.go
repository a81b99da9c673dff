package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/repoatlas/repoatlas/internal/analysis"
)

// Render writes the analysis report to path as a PDF. When PDF generation
// fails it writes the same content as plain text next to the requested path
// and reports degraded=true. Rendering only returns an error when the text
// fallback also fails.
func Render(state analysis.State, path string, enhanced bool) (outPath string, degraded bool, err error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", false, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	summary := Summarize(state)

	if err := renderPDF(state, summary, path, enhanced); err == nil {
		return path, false, nil
	}

	txtPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".txt"
	if werr := os.WriteFile(txtPath, []byte(textReport(state, summary, enhanced)), 0o644); werr != nil {
		return "", false, fmt.Errorf("failed to write text fallback: %w", werr)
	}
	return txtPath, true, nil
}

func renderPDF(state analysis.State, summary QualitySummary, path string, enhanced bool) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	// Title.
	pdf.SetFont("Helvetica", "B", 24)
	pdf.SetTextColor(0, 0, 128)
	pdf.CellFormat(0, 14, tr("Multi-Repository Analysis Report"), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 13)
	pdf.SetTextColor(110, 110, 110)
	pdf.CellFormat(0, 8, tr(fmt.Sprintf("GitHub user %s", state.Username)), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	writeQualityTable(pdf, tr, summary)

	writeSection(pdf, tr, "Executive Summary", nonEmpty(state.FinalReport, "No report generated"))

	if len(state.FailedRepos) > 0 {
		var sb strings.Builder
		for _, failure := range state.FailedRepos {
			fmt.Fprintf(&sb, "%s: %s\n", failure.Name, failure.Reason)
		}
		writeSection(pdf, tr, "Repositories Not Analyzed", sb.String())
	}

	if enhanced {
		writeAppendix(pdf, tr, summary)
		writeMetadata(pdf, tr, state)
	}

	return pdf.OutputFileAndClose(path)
}

func writeQualityTable(pdf *fpdf.Fpdf, tr func(string) string, summary QualitySummary) {
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(0, 0, 128)
	pdf.CellFormat(0, 10, tr("Quality Assurance Summary"), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	rows := [][2]string{
		{"Overall Quality", status(summary.OverallApproved)},
		{"Repositories Analyzed", fmt.Sprintf("%d", summary.RepositoriesAnalyzed)},
		{"Files Processed", fmt.Sprintf("%d", summary.TotalFilesProcessed)},
		{"Data Quality", status(summary.DataQuality.Approved)},
		{"Analysis Quality", status(summary.AnalysisQuality.Approved)},
		{"Final Quality", status(summary.FinalQuality.Approved)},
	}

	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetFillColor(0, 0, 128)
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(90, 9, tr("Metric"), "1", 0, "C", true, 0, "")
	pdf.CellFormat(90, 9, tr("Value"), "1", 1, "C", true, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	pdf.SetFillColor(245, 245, 220)
	pdf.SetTextColor(0, 0, 0)
	for _, row := range rows {
		pdf.CellFormat(90, 8, tr(row[0]), "1", 0, "C", true, 0, "")
		pdf.CellFormat(90, 8, tr(row[1]), "1", 1, "C", true, 0, "")
	}
	pdf.Ln(8)
}

func writeSection(pdf *fpdf.Fpdf, tr func(string) string, title, content string) {
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(0, 0, 128)
	pdf.CellFormat(0, 10, tr(title), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 11)
	pdf.SetTextColor(0, 0, 0)
	for _, para := range strings.Split(content, "\n\n") {
		if para = strings.TrimSpace(para); para != "" {
			pdf.MultiCell(0, 6, tr(para), "", "L", false)
			pdf.Ln(3)
		}
	}
	pdf.Ln(5)
}

func writeAppendix(pdf *fpdf.Fpdf, tr func(string) string, summary QualitySummary) {
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetTextColor(0, 0, 128)
	pdf.CellFormat(0, 12, tr("Quality Review Appendix"), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	writeSection(pdf, tr, "Data Quality Review", nonEmpty(summary.DataQuality.Review, "No review available"))
	writeSection(pdf, tr, "Analysis Quality Review", nonEmpty(summary.AnalysisQuality.Review, "No review available"))
	writeSection(pdf, tr, "Final Quality Review", nonEmpty(summary.FinalQuality.Review, "No review available"))
}

func writeMetadata(pdf *fpdf.Fpdf, tr func(string) string, state analysis.State) {
	pdf.AddPage()
	writeSection(pdf, tr, "Report Metadata", metadataText(state))
}

func metadataText(state analysis.State) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Generated: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Target: GitHub user %q\n\n", state.Username)
	fmt.Fprintf(&sb, "Quality Gates: Data Quality, Analysis Quality, Final Quality\n\n")
	fmt.Fprintf(&sb, "Tokens Used: %d", state.TokensUsed)
	return sb.String()
}

// textReport renders the same content as the PDF in plain text.
func textReport(state analysis.State, summary QualitySummary, enhanced bool) string {
	var sb strings.Builder

	sb.WriteString("Multi-Repository Analysis Report\n")
	fmt.Fprintf(&sb, "GitHub user %s\n\n", state.Username)

	sb.WriteString("Quality Assurance Summary\n")
	fmt.Fprintf(&sb, "  Overall Quality:        %s\n", status(summary.OverallApproved))
	fmt.Fprintf(&sb, "  Repositories Analyzed:  %d\n", summary.RepositoriesAnalyzed)
	fmt.Fprintf(&sb, "  Files Processed:        %d\n", summary.TotalFilesProcessed)
	fmt.Fprintf(&sb, "  Data Quality:           %s\n", status(summary.DataQuality.Approved))
	fmt.Fprintf(&sb, "  Analysis Quality:       %s\n", status(summary.AnalysisQuality.Approved))
	fmt.Fprintf(&sb, "  Final Quality:          %s\n\n", status(summary.FinalQuality.Approved))

	sb.WriteString("Executive Summary\n")
	sb.WriteString(nonEmpty(state.FinalReport, "No report generated"))
	sb.WriteString("\n\n")

	if len(state.FailedRepos) > 0 {
		sb.WriteString("Repositories Not Analyzed\n")
		for _, failure := range state.FailedRepos {
			fmt.Fprintf(&sb, "  %s: %s\n", failure.Name, failure.Reason)
		}
		sb.WriteString("\n")
	}

	if enhanced {
		sb.WriteString("Quality Review Appendix\n\n")
		fmt.Fprintf(&sb, "Data Quality Review\n%s\n\n", nonEmpty(summary.DataQuality.Review, "No review available"))
		fmt.Fprintf(&sb, "Analysis Quality Review\n%s\n\n", nonEmpty(summary.AnalysisQuality.Review, "No review available"))
		fmt.Fprintf(&sb, "Final Quality Review\n%s\n\n", nonEmpty(summary.FinalQuality.Review, "No review available"))
		sb.WriteString(metadataText(state))
		sb.WriteString("\n")
	}

	return sb.String()
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
