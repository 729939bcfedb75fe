package tools

import (
	"net/http"
	"time"

	"github.com/cloudwego/eino/components/model"
)

// Deps are the collaborators of the built-in tool set.
type Deps struct {
	Calendar  CalendarClient
	Tasks     TaskClient
	Knowledge Knowledge
	// Picker disambiguates calendar targets. It should not have tools bound.
	Picker model.BaseChatModel

	HTTPClient      *http.Client
	SerpAPIKey      string
	SerpAPIEndpoint string

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Default returns the full tool set in registration order.
func Default(d Deps) []Tool {
	client := d.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}

	// A typed-nil Knowledge must not look configured.
	var kb Knowledge
	if hk, ok := d.Knowledge.(*HTTPKnowledge); !ok || hk != nil {
		kb = d.Knowledge
	}

	return []Tool{
		newSearch(client, d.SerpAPIEndpoint, d.SerpAPIKey),
		newKnowledge(kb),
		newCreateTodo(d.Tasks, clock),
		newCheckSchedule(d.Calendar, clock),
		newSetSchedule(d.Calendar, clock),
		newSearchSchedule(d.Calendar, clock),
		newModifySchedule(d.Calendar, d.Picker, clock),
		newDelSchedule(d.Calendar, d.Picker, clock),
		newConfirmDelSchedule(d.Calendar),
	}
}
