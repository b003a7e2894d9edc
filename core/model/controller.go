package model

// Controller is one charging outlet behind a Charger, keyed by its device UID.
type Controller struct {
	ID                string `json:"id"`
	ChargerID         int64  `json:"charger_id"`
	ChargingPointID   *int64 `json:"charging_point_id,omitempty"`
	ChargingPointName string `json:"charging_point_name"`
	ParentDeviceID    string `json:"parent_device_uid"`
	Position          int    `json:"position"`
	DeviceName        string `json:"device_name"`
	FirmwareVersion   string `json:"firmware_version"`
	HardwareVersion   string `json:"hardware_version"`
}

// ControllerInfo is the metadata reported by the telemetry API for a controller.
type ControllerInfo struct {
	ParentDeviceID  string
	Position        int
	DeviceName      string
	FirmwareVersion string
	HardwareVersion string
}

// ChargingPoint is one entry of the telemetry API's charging point listing.
type ChargingPoint struct {
	ID           int64
	Name         string
	ControllerID string
}

// FindChargingPoint returns the point registered for the given controller.
func FindChargingPoint(points []ChargingPoint, controllerID string) (ChargingPoint, bool) {
	for _, p := range points {
		if p.ControllerID == controllerID {
			return p, true
		}
	}
	return ChargingPoint{}, false
}
