package notify

// Config holds alert delivery settings. Without Postmark tokens alerts are
// only logged.
type Config struct {
	PostmarkServerToken  string   `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string   `env:"POSTMARK_ACCOUNT_TOKEN"`
	From                 string   `env:"ALERT_FROM" envDefault:"billing@localhost"`
	To                   []string `env:"ALERT_TO" envSeparator:","`
	Tag                  string   `env:"ALERT_TAG" envDefault:"billing-alert"`
}

// PostmarkEnabled reports whether enough is configured to send email.
func (c Config) PostmarkEnabled() bool {
	return c.PostmarkServerToken != "" && len(c.To) > 0
}
