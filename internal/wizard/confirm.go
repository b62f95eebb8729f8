package wizard

import (
	"errors"
	"fmt"
)

// ErrDeclined is returned by ConfirmApply when the operator answers no.
var ErrDeclined = errors.New("reconcile canceled by operator")

// ConfirmApply asks before changes are sent to Azure. A Ctrl+C is reported
// as ErrDeclined.
func ConfirmApply(p Prompter, rule string, groups int, subscription string) error {
	if p == nil {
		p = NewSurveyPrompter()
	}
	ok, err := p.Confirm(fmt.Sprintf("Apply rule %q to %d NSG(s) in subscription %s?", rule, groups, subscription), false)
	if err != nil {
		if errors.Is(err, ErrCanceled) {
			return ErrDeclined
		}
		return err
	}
	if !ok {
		return ErrDeclined
	}
	return nil
}
