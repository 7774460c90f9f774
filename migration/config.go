package migration

import (
	"github.com/pkg/errors"
)

type Config struct {
	HomeserverUrl     string `default:"http://localhost:8008" split_words:"true"`
	ServerName        string `default:"localhost" split_words:"true"`
	AdminAccessToken  string `required:"true" split_words:"true"`
	AdminUsername     string `default:"admin" split_words:"true"`
	InputsDir         string `default:"./inputs" split_words:"true"`
	DatabasePath      string `default:"./migration.db" split_words:"true"`
	RequestsPerSecond int    `default:"10" split_words:"true"`
	RoomWorkers       int    `default:"4" split_words:"true"`
	MemberWorkers     int    `default:"8" split_words:"true"`
	SkipMessages      bool   `default:"false" split_words:"true"`

	// Users carrying any of these roles in the export are not migrated.
	ExcludedUserRoles []string `default:"bot,app" split_words:"true"`

	// Notifications are published after the migration finished, so no
	// mails reach users mid-migration. Empty topic disables the step.
	NotificationsTopic           string `split_words:"true"`
	ProjectName                  string `default:"rocketchat2matrix" split_words:"true"`
	GoogleApplicationCredentials string `split_words:"true"`
}

// Validate rejects limits the run cannot work with. A worker count of
// zero would make the reconciliation pool block forever instead of
// erroring.
func (c *Config) Validate() error {
	if c.RequestsPerSecond <= 0 {
		return errors.Errorf("invalid requests per second: %d", c.RequestsPerSecond)
	}
	if c.RoomWorkers <= 0 {
		return errors.Errorf("invalid room worker count: %d", c.RoomWorkers)
	}
	if c.MemberWorkers <= 0 {
		return errors.Errorf("invalid member worker count: %d", c.MemberWorkers)
	}
	return nil
}
