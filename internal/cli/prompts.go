package cli

import (
	"errors"
	"strings"

	"github.com/AlecAivazis/survey/v2"
)

const maxNameLength = 100

// PromptForName asks for the player's name.
func PromptForName() (string, error) {
	var name string
	prompt := &survey.Input{
		Message: "Enter your trader name:",
		Help:    "Names are matched case-insensitively, so returning players resume their history.",
	}

	err := survey.AskOne(prompt, &name, survey.WithValidator(validateName))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(name), nil
}

func validateName(val interface{}) error {
	str, _ := val.(string)
	str = strings.TrimSpace(str)
	if str == "" {
		return errors.New("name cannot be empty")
	}
	if len(str) > maxNameLength {
		return errors.New("name too long (max 100 characters)")
	}
	return nil
}
