package relay

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config carries the delivery credentials. It is fixed for the lifetime of a Handler;
// a reload builds a new Handler.
type Config struct {
	BotToken string `validate:"required"`
	ChatID   string `validate:"required"`

	APIBase string `validate:"omitempty,url"`
	Timeout time.Duration
}

var errCredentialsMissing = errors.New("telegram bot token or chat id not configured")

// CheckCredentials reports a missing bot token or chat id.
func (c Config) CheckCredentials() error {
	c.BotToken = strings.TrimSpace(c.BotToken)
	c.ChatID = strings.TrimSpace(c.ChatID)

	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == "required" {
				return errCredentialsMissing
			}
		}
	}
	return err
}
