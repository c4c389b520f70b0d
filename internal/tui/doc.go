// Package tui provides the terminal watch view for a running plan.
package tui
