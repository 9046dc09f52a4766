// Package ui provides message printing utilities.
package ui

import (
	"fmt"
)

// quietMode suppresses non-essential output when set via SetQuietMode.
var quietMode bool

// SetQuietMode enables or disables quiet mode.
//
// Parameters:
//   - quiet: If true, non-essential output is suppressed
func SetQuietMode(quiet bool) {
	quietMode = quiet
}

// Println prints an empty line.
func Println() {
	if quietMode {
		return
	}
	fmt.Println()
}

// PrintSuccess prints a success message.
//
// Parameters:
//   - format: Printf format string
//   - args: Printf arguments
func PrintSuccess(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(SuccessStyle.Render("✓ " + msg))
}

// PrintError prints an error message.
//
// Parameters:
//   - format: Printf format string
//   - args: Printf arguments
func PrintError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(ErrorStyle.Render("✗ " + msg))
}

// PrintWarning prints a warning message.
//
// Parameters:
//   - format: Printf format string
//   - args: Printf arguments
func PrintWarning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(WarningStyle.Render("⚠ " + msg))
}

// PrintInfo prints an informational message.
//
// Parameters:
//   - format: Printf format string
//   - args: Printf arguments
func PrintInfo(format string, args ...interface{}) {
	if quietMode {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Println(InfoStyle.Render(msg))
}

// PrintDim prints a dimmed message.
//
// Parameters:
//   - format: Printf format string
//   - args: Printf arguments
func PrintDim(format string, args ...interface{}) {
	if quietMode {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Println(DimStyle.Render(msg))
}

// PrintLink prints a labeled URL.
//
// Parameters:
//   - label: The link label
//   - url: The URL
func PrintLink(label, url string) {
	fmt.Printf("%s %s\n", DimStyle.Render(label+":"), LinkStyle.Render(url))
}
