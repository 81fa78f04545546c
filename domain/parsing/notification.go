package parsing

import (
	"fmt"
	"time"

	"eventlink-go/core/event"
)

// NotificationDateLayout is the timestamp format of smart notification dates.
const NotificationDateLayout = "2006-01-02T15:04:05-0700"

type smartNotificationPayload struct {
	Message string `json:"message"`
	Link    string `json:"link"`
	Project string `json:"project"`
	Date    string `json:"date"`
}

// SmartNotificationParser returns a parser producing smart notifications of the given category.
func SmartNotificationParser(category string) Parser {
	return func(data []byte) (event.ServerEvent, error) {
		var p smartNotificationPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}

		switch {
		case p.Message == "":
			return nil, missing("message")
		case p.Link == "":
			return nil, missing("link")
		case p.Project == "":
			return nil, missing("project")
		case p.Date == "":
			return nil, missing("date")
		}

		date, err := time.Parse(NotificationDateLayout, p.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: date %q: %v", ErrInvalidPayload, p.Date, err)
		}
		return event.NewSmartNotification(category, p.Project, p.Message, p.Link, date), nil
	}
}
