package monitoring

import (
	"strconv"
	"time"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Flush(time.Duration)                       {}

// Tags builds a tag set for a charger/controller pair.
func Tags(module string, chargerID int64, controllerID string) map[string]string {
	t := map[string]string{"module": module}
	if chargerID != 0 {
		t["charger_id"] = strconv.FormatInt(chargerID, 10)
	}
	if controllerID != "" {
		t["controller_id"] = controllerID
	}
	return t
}
