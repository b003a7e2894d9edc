package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kilianp07/chargewatch/core/model"
	coretelemetry "github.com/kilianp07/chargewatch/core/telemetry"
)

// HTTPGateway implements core telemetry.Gateway against the REST API of one
// charger.
type HTTPGateway struct {
	BaseURL string
	HTTP    *http.Client
	inst    *Instruments
}

// NewHTTPGateway builds the gateway of a charger. inst may be nil.
func NewHTTPGateway(cfg Config, c model.Charger, inst *Instruments) *HTTPGateway {
	cfg.SetDefaults()
	base := url.URL{Scheme: cfg.Scheme, Host: c.TelemetryAddr(), Path: cfg.BasePath}
	return &HTTPGateway{
		BaseURL: base.String(),
		HTTP:    &http.Client{Timeout: cfg.Timeout()},
		inst:    inst,
	}
}

// NewFactory returns a constructor of per charger gateways sharing cfg.
func NewFactory(cfg Config, inst *Instruments) func(model.Charger) coretelemetry.Gateway {
	return func(c model.Charger) coretelemetry.Gateway {
		return NewHTTPGateway(cfg, c, inst)
	}
}

// maxBodySize caps a telemetry response.
const maxBodySize = 1 << 20

type controllerInfoDTO struct {
	ParentDeviceUID *string `json:"parent_device_uid"`
	Position        *int    `json:"position"`
	DeviceName      string  `json:"device_name"`
	FirmwareVersion string  `json:"firmware_version"`
	HardwareVersion string  `json:"hardware_version"`
}

type chargingPointsDTO struct {
	ChargingPoints map[string]struct {
		ID            *int64 `json:"id"`
		Name          string `json:"charging_point_name"`
		ControllerUID string `json:"charging_controller_device_uid"`
	} `json:"charging_points"`
}

type energyDTO struct {
	Energy *struct {
		Timestamp       string `json:"timestamp"`
		EnergyRealPower *struct {
			Value *float64 `json:"value"`
		} `json:"energy_real_power"`
	} `json:"energy"`
}

type rfidDTO struct {
	RFID *struct {
		Tag       *string `json:"tag"`
		Timestamp *string `json:"timestamp"`
	} `json:"rfid"`
}

// ControllerInfo returns the static description of a controller.
func (g *HTTPGateway) ControllerInfo(ctx context.Context, deviceID string) (model.ControllerInfo, error) {
	var dto controllerInfoDTO
	if err := g.get(ctx, "info", "charging-controllers/"+url.PathEscape(deviceID)+"/info", &dto); err != nil {
		return model.ControllerInfo{}, err
	}
	if dto.ParentDeviceUID == nil || dto.Position == nil {
		return model.ControllerInfo{}, fmt.Errorf("%w: controller info of %s", coretelemetry.ErrMalformed, deviceID)
	}
	return model.ControllerInfo{
		ParentDeviceID:  *dto.ParentDeviceUID,
		Position:        *dto.Position,
		DeviceName:      dto.DeviceName,
		FirmwareVersion: dto.FirmwareVersion,
		HardwareVersion: dto.HardwareVersion,
	}, nil
}

// ChargingPoints lists the charging points of the charger.
func (g *HTTPGateway) ChargingPoints(ctx context.Context) ([]model.ChargingPoint, error) {
	var dto chargingPointsDTO
	if err := g.get(ctx, "charging_points", "charging-points", &dto); err != nil {
		return nil, err
	}
	if dto.ChargingPoints == nil {
		return nil, fmt.Errorf("%w: charging points", coretelemetry.ErrMalformed)
	}
	points := make([]model.ChargingPoint, 0, len(dto.ChargingPoints))
	for key, p := range dto.ChargingPoints {
		if p.ID == nil {
			return nil, fmt.Errorf("%w: charging point %s has no id", coretelemetry.ErrMalformed, key)
		}
		points = append(points, model.ChargingPoint{ID: *p.ID, Name: p.Name, ControllerID: p.ControllerUID})
	}
	return points, nil
}

// Energy returns the cumulative real energy of a controller.
func (g *HTTPGateway) Energy(ctx context.Context, deviceID string) (model.EnergyReading, error) {
	var dto energyDTO
	if err := g.get(ctx, "energy", "charging-controllers/"+url.PathEscape(deviceID)+"/data?param_list=energy", &dto); err != nil {
		return model.EnergyReading{}, err
	}
	if dto.Energy == nil || dto.Energy.EnergyRealPower == nil || dto.Energy.EnergyRealPower.Value == nil {
		return model.EnergyReading{}, fmt.Errorf("%w: energy of %s", coretelemetry.ErrMalformed, deviceID)
	}
	ts, err := ParseTimestamp(dto.Energy.Timestamp)
	if err != nil {
		return model.EnergyReading{}, fmt.Errorf("%w: energy timestamp of %s: %v", coretelemetry.ErrMalformed, deviceID, err)
	}
	return model.EnergyReading{Timestamp: ts, Value: *dto.Energy.EnergyRealPower.Value}, nil
}

// RFID returns the last tag read by a controller. Both fields must be present;
// an empty timestamp yields a reading without tap time.
func (g *HTTPGateway) RFID(ctx context.Context, deviceID string) (model.RFIDReading, error) {
	var dto rfidDTO
	if err := g.get(ctx, "rfid", "charging-controllers/"+url.PathEscape(deviceID)+"/data?param_list=rfid", &dto); err != nil {
		return model.RFIDReading{}, err
	}
	if dto.RFID == nil || dto.RFID.Tag == nil || dto.RFID.Timestamp == nil {
		return model.RFIDReading{}, fmt.Errorf("%w: rfid of %s", coretelemetry.ErrMalformed, deviceID)
	}
	r := model.RFIDReading{Tag: *dto.RFID.Tag}
	if strings.TrimSpace(*dto.RFID.Timestamp) != "" {
		ts, err := ParseTimestamp(*dto.RFID.Timestamp)
		if err != nil {
			return model.RFIDReading{}, fmt.Errorf("%w: rfid timestamp of %s: %v", coretelemetry.ErrMalformed, deviceID, err)
		}
		r.Timestamp = ts
	}
	return r, nil
}

func (g *HTTPGateway) get(ctx context.Context, endpoint, path string, out any) (err error) {
	start := time.Now()
	result := "ok"
	defer func() {
		if err != nil {
			result = "error"
		}
		g.inst.observe(endpoint, result, time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := g.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", coretelemetry.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", coretelemetry.ErrUnavailable, endpoint, err)
	}
	if len(body) > maxBodySize {
		return fmt.Errorf("%w: %s body exceeds %d bytes", coretelemetry.ErrMalformed, endpoint, maxBodySize)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", coretelemetry.ErrUnavailable, endpoint, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", coretelemetry.ErrMalformed, endpoint, err)
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses the timestamps emitted by charger firmwares.
// Timestamps without zone are taken as UTC.
func ParseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", v)
}
