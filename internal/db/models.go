package db

import "time"

type ConfigurationState string

const (
	ConfigurationStateACTIVE      ConfigurationState = "ACTIVE"
	ConfigurationStateDEACTIVATED ConfigurationState = "DEACTIVATED"
)

type SmsConfiguration struct {
	TenantID     string
	Identifier   string
	AuthToken    string
	AccountSid   string
	SenderNumber string
	State        ConfigurationState
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type EmailConfiguration struct {
	TenantID    string
	Identifier  string
	Host        string
	Port        int32
	Protocol    string
	Username    string
	AppPassword string
	SmtpAuth    bool
	StartTls    bool
	State       ConfigurationState
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
