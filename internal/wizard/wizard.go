// Package wizard holds the interactive prompts of nsgctl: the rule file
// wizard behind `nsgctl init` and the confirmation shown before a live
// reconcile.
package wizard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/asukhov/nsgctl/internal/nsg"
)

// ErrCanceled is returned when the user aborts a prompt with Ctrl+C.
var ErrCanceled = terminal.InterruptErr

// ValidateNonEmpty ensures a required value is provided.
func ValidateNonEmpty(value interface{}) error {
	if strings.TrimSpace(fmt.Sprintf("%v", value)) == "" {
		return fmt.Errorf("value is required")
	}
	return nil
}

// ValidatePriority accepts a blank value or an integer in 100..4096.
func ValidatePriority(value interface{}) error {
	v := strings.TrimSpace(fmt.Sprintf("%v", value))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < nsg.MinPriority || n > nsg.MaxPriority {
		return fmt.Errorf("priority must be a number between %d and %d", nsg.MinPriority, nsg.MaxPriority)
	}
	return nil
}

// Prompter abstracts user interaction for testing.
type Prompter interface {
	Input(label, defaultValue string, validator survey.Validator) (string, error)
	Select(label string, options []string, defaultValue string) (string, error)
	Confirm(label string, defaultValue bool) (bool, error)
	MultiSelect(label string, options []string, defaults []string) ([]string, error)
}

// SurveyPrompter implements Prompter with survey/v2.
type SurveyPrompter struct{}

// NewSurveyPrompter returns a survey-based prompter.
func NewSurveyPrompter() *SurveyPrompter {
	return &SurveyPrompter{}
}

func (p *SurveyPrompter) Input(label, defaultValue string, validator survey.Validator) (string, error) {
	var value string
	opts := []survey.AskOpt{}
	if validator != nil {
		opts = append(opts, survey.WithValidator(validator))
	}
	err := survey.AskOne(&survey.Input{
		Message: label,
		Default: defaultValue,
	}, &value, opts...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func (p *SurveyPrompter) Select(label string, options []string, defaultValue string) (string, error) {
	var value string
	err := survey.AskOne(&survey.Select{
		Message: label,
		Options: options,
		Default: defaultValue,
	}, &value)
	if err != nil {
		return "", err
	}
	return value, nil
}

func (p *SurveyPrompter) Confirm(label string, defaultValue bool) (bool, error) {
	var value bool
	err := survey.AskOne(&survey.Confirm{
		Message: label,
		Default: defaultValue,
	}, &value)
	if err != nil {
		return false, err
	}
	return value, nil
}

func (p *SurveyPrompter) MultiSelect(label string, options []string, defaults []string) ([]string, error) {
	var selected []string
	err := survey.AskOne(&survey.MultiSelect{
		Message: label,
		Options: options,
		Default: defaults,
	}, &selected)
	if err != nil {
		return nil, err
	}
	return selected, nil
}
