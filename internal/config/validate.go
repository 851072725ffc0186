package config

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	logx "vercelgram/pkg/logx"
)

var (
	validate = newValidator()
	// hostCheck has no custom rules; validListenAddr uses it.
	hostCheck = validator.New()
)

func newValidator() *validator.Validate {
	v := validator.New()
	// Report json names ("server.addr") instead of Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		return logx.ValidLevel(fl.Field().String())
	})
	_ = v.RegisterValidation("listenaddr", func(fl validator.FieldLevel) bool {
		return validListenAddr(fl.Field().String())
	})
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := ParseDurationField(fl.FieldName(), fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks the structural rules of cfg. Credentials are not checked here.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	path := fieldPath(fe.Namespace())
	switch fe.Tag() {
	case "listenaddr":
		return fmt.Sprintf("%s: %q must be host:port", path, fe.Value())
	case "startswith":
		return fmt.Sprintf("%s: %q must start with %q", path, fe.Value(), fe.Param())
	case "url":
		return fmt.Sprintf("%s: %q is not a valid url", path, fe.Value())
	case "loglevel":
		return fmt.Sprintf("%s: unknown level %q", path, fe.Value())
	case "duration":
		return fmt.Sprintf("%s: invalid duration %q", path, fe.Value())
	case "gte":
		return fmt.Sprintf("%s: must be >= %s", path, fe.Param())
	default:
		return fmt.Sprintf("%s: failed %s", path, fe.Tag())
	}
}

// validListenAddr accepts what net.Listen takes for tcp: an optional host
// (name, IPv4 or bracketed IPv6) and a port in 0..65535.
func validListenAddr(addr string) bool {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return false
	}
	if host == "" || net.ParseIP(host) != nil {
		return true
	}
	return hostCheck.Var(host, "hostname_rfc1123") == nil
}

// fieldPath drops the root type name: "Config.server.addr" -> "server.addr".
func fieldPath(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	return rest
}

// ReadHeaderTimeout returns server.read_header_timeout, defaulting to 5s.
func (c *Config) ReadHeaderTimeout() time.Duration {
	d, err := ParseDurationOrDefault("server.read_header_timeout", c.Server.ReadHeaderTimeout, 5*time.Second)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// TelegramTimeout returns telegram.timeout (zero when unset).
func (c *Config) TelegramTimeout() time.Duration {
	d, err := ParseDurationField("telegram.timeout", c.Telegram.Timeout)
	if err != nil {
		return 0
	}
	return d
}
