// Package ui provides terminal UI components using Charm libraries.
//
// This package contains the styling and message helpers for the Orbit
// CLI's terminal output.
package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Brand colors for Orbit.
var (
	// Primary brand color - Orbit indigo
	Indigo = lipgloss.Color("#6366F1")

	// Secondary colors
	Red     = lipgloss.Color("#EF4444")
	Amber   = lipgloss.Color("#F59E0B")
	Green   = lipgloss.Color("#22C55E")
	DimGray = lipgloss.Color("#9CA3AF")
)

// Text styles.
var (
	// TitleStyle for main headings
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Indigo)

	// SuccessStyle for success messages
	SuccessStyle = lipgloss.NewStyle().
			Foreground(Green).
			Bold(true)

	// ErrorStyle for error messages
	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red).
			Bold(true)

	// WarningStyle for warning messages
	WarningStyle = lipgloss.NewStyle().
			Foreground(Amber)

	// InfoStyle for informational messages
	InfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E5E7EB"))

	// DimStyle for less important text
	DimStyle = lipgloss.NewStyle().
			Foreground(DimGray)

	// LinkStyle for URLs
	LinkStyle = lipgloss.NewStyle().
			Foreground(Indigo).
			Underline(true)
)
