package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/GoCodeAlone/bookstore/scheduler"
	"github.com/GoCodeAlone/bookstore/world"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA")).
			Width(22)
	noteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

func row(label string, value any) string {
	return labelStyle.Render(label) + fmt.Sprint(value)
}

// renderSummary renders the end-of-run report. digest may be empty.
func renderSummary(s scheduler.Summary, digest string) string {
	lines := []string{
		titleStyle.Render("SIMULATION SUMMARY"),
		row("Steps", s.Steps),
		row("Revenue", fmt.Sprintf("$%.2f", s.Revenue)),
		row("Books sold", s.BooksSold),
		row("Orders processed", s.ProcessedOrders),
		row("Orders rejected", s.RejectedOrders),
		row("Avg satisfaction", fmt.Sprintf("%.3f", s.AvgSatisfaction)),
		row("Final stock", s.FinalStock),
		row("Messages", s.MessagesPublished),
		"",
		row("Purchase rate", fmt.Sprintf("%.3f books/step", s.PurchaseRate)),
		row("Customer engagement", fmt.Sprintf("%.1f%%", s.EngagementRate*100)),
		row("Inventory turnover", fmt.Sprintf("%.3f", s.InventoryTurnover)),
		row("Messages per step", fmt.Sprintf("%.2f", s.MessagesPerStep)),
		row("Avg efficiency", fmt.Sprintf("%.2f", s.AvgEfficiency)),
	}
	if s.SkippedTurns > 0 {
		lines = append(lines, row("Skipped turns", s.SkippedTurns))
	}
	if digest != "" {
		lines = append(lines, "", noteStyle.Render("digest "+digest))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

// renderWorld renders the catalog and population of st.
func renderWorld(st *world.State) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("CATALOG") + "\n")
	fmt.Fprintf(&b, "%-22s %-32s %-16s %8s %6s %8s %6s\n", "ID", "TITLE", "GENRE", "PRICE", "STOCK", "REORDER", "POP")
	for _, book := range st.Books() {
		inv, _ := st.Inventory(book.ID)
		genre, _ := st.Genre(book.GenreID)
		fmt.Fprintf(&b, "%-22s %-32s %-16s %8.2f %6d %8d %6.2f\n",
			book.ID, truncate(book.Title, 31), genre.Name, book.Price, inv.Quantity, inv.ReorderLevel, book.Popularity)
	}

	b.WriteString("\n" + titleStyle.Render("CUSTOMERS") + "\n")
	fmt.Fprintf(&b, "%-10s %-14s %8s  %s\n", "ID", "NAME", "BUDGET", "PREFERENCES")
	for _, c := range st.Customers() {
		fmt.Fprintf(&b, "%-10s %-14s %8.2f  %s\n", c.ID, c.Name, c.Budget, strings.Join(c.Preferences, ", "))
	}

	b.WriteString("\n" + titleStyle.Render("EMPLOYEES") + "\n")
	fmt.Fprintf(&b, "%-10s %-14s %-22s %s\n", "ID", "NAME", "ROLE", "EFFICIENCY")
	for _, e := range st.Employees() {
		fmt.Fprintf(&b, "%-10s %-14s %-22s %.2f\n", e.ID, e.Name, e.Role.DisplayName(), e.Efficiency)
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
