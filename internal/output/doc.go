// Package output provides styled terminal output utilities for nsgctl.
//
// It wraps charmbracelet/log for leveled logging and charmbracelet/lipgloss
// for styled summaries. Commands print per-NSG progress through this package
// rather than fmt.Println, so that --json and NO_COLOR are honoured in one
// place.
package output
