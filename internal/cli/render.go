package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pesio-ai/be-ar-invoicing/internal/classifier"
	"github.com/pesio-ai/be-ar-invoicing/internal/client"
	"github.com/pesio-ai/be-ar-invoicing/internal/service"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func renderResult(r *service.BatchResult) string {
	var lines []string
	lines = append(lines, titleStyle.Render("Batch "+r.BatchID))

	for _, inv := range r.Invoices {
		verb := "created"
		if inv.IsUpdate {
			verb = "updated"
		}
		line := fmt.Sprintf("%s %s %s  %s %s",
			okStyle.Render("✓"), inv.InvoiceNumber, verb, inv.Key, mutedStyle.Render(ids(inv.RecordIDs)))
		if inv.Retried {
			line += warnStyle.Render(" (retried)")
		}
		lines = append(lines, line)
		if inv.Warning != "" {
			lines = append(lines, "  "+warnStyle.Render(inv.Warning))
		}
	}
	for _, f := range r.Failed {
		line := fmt.Sprintf("%s %s %s  %s",
			failStyle.Render("✗"), f.Key, mutedStyle.Render(ids(f.RecordIDs)), kindText(f.Classification))
		if f.Retried {
			line += warnStyle.Render(" (retried)")
		}
		lines = append(lines, line)
	}

	summary := okStyle
	if !r.Succeeded() {
		summary = failStyle
	}
	lines = append(lines, "", summary.Render(r.Summary()))
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func renderStatus(s client.ConnectionStatus, grpcServing *bool) string {
	var b strings.Builder
	if s.Connected {
		b.WriteString(okStyle.Render("Connected to " + s.TenantName))
	} else {
		b.WriteString(warnStyle.Render("Not connected"))
	}
	if grpcServing != nil {
		state := "NOT_SERVING"
		if *grpcServing {
			state = "SERVING"
		}
		b.WriteString(mutedStyle.Render(" (gRPC health: " + state + ")"))
	}
	return b.String()
}

func renderError(err error) string {
	return failStyle.Render(kindText(classifier.Classify(err)))
}

func kindText(c classifier.Classification) string {
	return strings.ReplaceAll(string(c.Kind), "_", " ") + ": " + c.Message
}

func ids(recordIDs []string) string {
	return "(" + strings.Join(recordIDs, ", ") + ")"
}
