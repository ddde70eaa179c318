// Package configuration models the per-tenant SMS and email gateway
// configurations managed by the notification service.
package configuration

import (
	"errors"
	"strings"
)

var (
	// ErrConfigurationNotFound is returned when no configuration matches the identifier.
	ErrConfigurationNotFound = errors.New("configuration not found")
	// ErrConfigurationAlreadyExists is returned when creating a duplicate identifier.
	ErrConfigurationAlreadyExists = errors.New("configuration already exists")
)

// State is the lifecycle state of a gateway configuration.
type State string

const (
	StateActive      State = "ACTIVE"
	StateDeactivated State = "DEACTIVATED"
)

// ParseState normalizes s. An empty value defaults to StateActive.
func ParseState(s string) (State, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(StateActive):
		return StateActive, nil
	case string(StateDeactivated):
		return StateDeactivated, nil
	default:
		return "", errors.New("state must be ACTIVE or DEACTIVATED")
	}
}

// Kind distinguishes the gateway families.
type Kind string

const (
	KindSMS   Kind = "sms"
	KindEmail Kind = "email"
)

// SMSConfiguration holds the credentials of an SMS gateway account.
type SMSConfiguration struct {
	Identifier   string `json:"identifier" validate:"required,max=32"`
	AuthToken    string `json:"authToken" validate:"required"`
	AccountSID   string `json:"accountSID" validate:"required"`
	SenderNumber string `json:"senderNumber" validate:"required"`
	State        State  `json:"state" validate:"omitempty,oneof=ACTIVE DEACTIVATED"`
}

// Key returns the identifier the configuration is stored under.
func (c SMSConfiguration) Key() string { return c.Identifier }

// IsActive reports whether the configuration may be used for delivery.
func (c SMSConfiguration) IsActive() bool { return c.State == StateActive }

// Normalized returns a copy with a defaulted state.
func (c SMSConfiguration) Normalized() SMSConfiguration {
	if c.State == "" {
		c.State = StateActive
	}
	return c
}

// EmailConfiguration holds the SMTP settings of an email gateway account.
type EmailConfiguration struct {
	Identifier  string `json:"identifier" validate:"required,max=32"`
	Host        string `json:"host" validate:"required,hostname|ip"`
	Port        int    `json:"port" validate:"required,min=1,max=65535"`
	Protocol    string `json:"protocol" validate:"omitempty,oneof=smtp smtps"`
	Username    string `json:"username" validate:"required"`
	AppPassword string `json:"appPassword" validate:"required"`
	SMTPAuth    bool   `json:"smtpAuth"`
	StartTLS    bool   `json:"startTls"`
	State       State  `json:"state" validate:"omitempty,oneof=ACTIVE DEACTIVATED"`
}

// Key returns the identifier the configuration is stored under.
func (c EmailConfiguration) Key() string { return c.Identifier }

// IsActive reports whether the configuration may be used for delivery.
func (c EmailConfiguration) IsActive() bool { return c.State == StateActive }

// Normalized returns a copy with defaulted state and protocol.
func (c EmailConfiguration) Normalized() EmailConfiguration {
	if c.State == "" {
		c.State = StateActive
	}
	if c.Protocol == "" {
		c.Protocol = "smtp"
	}
	return c
}

// Record is the set of configuration types the generic store and service
// operate on.
type Record interface {
	SMSConfiguration | EmailConfiguration

	Key() string
	IsActive() bool
}
