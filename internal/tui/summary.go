// Package tui renders provisioning output and interactive prompts.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"modelforge/internal/budget"
	"modelforge/internal/catalog"
	"modelforge/internal/hardware"
	"modelforge/internal/portfolio"
	"modelforge/internal/provision"
)

// RenderSummary renders the end-of-run provisioning summary.
func RenderSummary(outcomes []provision.PullOutcome, result provision.SetupResult) string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00d7ff")).MarginBottom(1)
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#87d787"))
	failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f"))
	reasonStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")).PaddingLeft(2)
	headlineOK := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#87d787")).MarginTop(1)
	headlineWarn := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffd700")).MarginTop(1)
	headlineFail := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff5f5f")).MarginTop(1)

	b.WriteString(titleStyle.Render("Provisioning Summary"))
	b.WriteString("\n\n")

	for _, outcome := range outcomes {
		label := fmt.Sprintf("%-12s %s", outcome.Role.String(), outcome.Model)
		if outcome.Success {
			marker := "✓"
			if outcome.UsedFallback {
				label += fmt.Sprintf(" (fallback for %s)", outcome.Requested)
			}
			b.WriteString(okStyle.Render(marker + " " + label))
			b.WriteString("\n")
			continue
		}
		b.WriteString(failStyle.Render("✗ " + label))
		b.WriteString("\n")
		b.WriteString(reasonStyle.Render("reason: " + outcome.FailureKind.String()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case result.AllSucceeded:
		b.WriteString(headlineOK.Render("All models installed."))
	case result.PartialSuccess:
		b.WriteString(headlineWarn.Render(fmt.Sprintf("%d of %d models installed.",
			len(result.Succeeded), len(result.Succeeded)+len(result.Failed))))
	case result.NoneSucceeded:
		b.WriteString(headlineFail.Render("No models could be installed."))
	default:
		b.WriteString(headlineWarn.Render("Nothing to do."))
	}
	b.WriteString("\n")

	return b.String()
}

// RenderHardware renders the detected hardware profile.
func RenderHardware(profile hardware.Profile) string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00d7ff")).MarginBottom(1)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#87d7af")).Width(14)
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f")).Bold(true).MarginTop(1)

	b.WriteString(titleStyle.Render("Hardware Profile"))
	b.WriteString("\n\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	row("Memory", fmt.Sprintf("%.1f GB", profile.TotalRAMGB))
	row("Architecture", profile.Arch)
	row("Tier", profile.Tier.String())
	if profile.GPU != nil {
		row("GPU", fmt.Sprintf("%s (%.1f GB VRAM)", profile.GPU.Name, profile.GPU.VRAMGB))
	} else {
		row("GPU", "none detected")
	}

	if !profile.Supported() {
		b.WriteString(warnStyle.Render("Below the 16 GB minimum; provisioning is disabled on this machine."))
		b.WriteString("\n")
	}

	return b.String()
}

// RenderPlan renders the dry-run plan: budget plus the selected
// portfolio, without touching the runtime.
func RenderPlan(profile hardware.Profile, alloc budget.Allocation, p portfolio.Portfolio) string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00d7ff")).MarginBottom(1)
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffd700")).MarginTop(1)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#87d7af")).Width(14)
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))

	b.WriteString(titleStyle.Render("Provisioning Plan"))
	b.WriteString("\n\n")

	b.WriteString(sectionStyle.Render("Budget"))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Tier"))
	b.WriteString(valueStyle.Render(profile.Tier.String()))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Usable"))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%.1f GB of %.1f GB", alloc.UsableGB, profile.TotalRAMGB)))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("Selected Models"))
	b.WriteString("\n")
	for _, role := range catalog.Roles() {
		b.WriteString(labelStyle.Render(role.String()))
		entry, ok := p.Assignments[role]
		if !ok {
			b.WriteString(dimStyle.Render("(no model fits the budget)"))
			b.WriteString("\n")
			continue
		}
		b.WriteString(valueStyle.Render(fmt.Sprintf("%s  %.1f GB", entry.ID, entry.MemoryGB)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("Total: %.1f GB planned within %.1f GB usable", p.TotalGB(), alloc.UsableGB)))
	b.WriteString("\n")

	return b.String()
}
