package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Badge styles using shared brand colors from styles.go
	bannerDimStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	bannerStarStyle    = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	bannerSparkStyle   = lipgloss.NewStyle().Foreground(colorPrimaryLight)
	bannerTitleStyle   = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	bannerTaglineStyle = lipgloss.NewStyle().Foreground(colorPrimaryDark).Italic(true)
	bannerVersionStyle = lipgloss.NewStyle().Foreground(colorMuted)
)

func renderBanner() string {
	dash := bannerDimStyle.Render("─")
	edge := bannerDimStyle.Render("·")
	beacon := bannerStarStyle.Render("◆")
	spark := bannerSparkStyle.Render("◇")
	title := bannerTitleStyle.Render("FIELDSYNC")

	rule := strings.Repeat(dash, 5)
	lines := []string{
		"  " + edge + rule + " " + spark + " " + beacon + " " + spark + " " + rule + edge,
		"        " + title,
		"  " + edge + rule + " " + spark + " " + beacon + " " + spark + " " + rule + edge,
	}

	return strings.Join(lines, "\n")
}

func renderBannerWithTagline() string {
	banner := renderBanner()
	tagline := bannerTaglineStyle.Render("   queue in the field, sync at base")
	ver := bannerVersionStyle.Render("            " + version)

	return strings.Join([]string{banner, tagline, ver}, "\n")
}
