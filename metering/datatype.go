package metering

import (
	"errors"
	"fmt"
)

// DataType names one of the metering endpoints
type DataType string

const (
	DailyConsumption     DataType = "daily_consumption"
	ConsumptionLoadCurve DataType = "consumption_load_curve"
	ConsumptionMaxPower  DataType = "consumption_max_power"
	DailyProduction      DataType = "daily_production"
	ProductionLoadCurve  DataType = "production_load_curve"
)

// ErrUnknownDataType is returned for names outside DataTypes
var ErrUnknownDataType = errors.New("unknown data type")

// DataTypes lists every endpoint in a stable order
var DataTypes = []DataType{
	DailyConsumption,
	ConsumptionLoadCurve,
	ConsumptionMaxPower,
	DailyProduction,
	ProductionLoadCurve,
}

// ParseDataType validates an endpoint name
func ParseDataType(s string) (DataType, error) {
	for _, dt := range DataTypes {
		if string(dt) == s {
			return dt, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownDataType, s)
}

// ExpectedUnit is the unit the endpoint reports its readings in
func (d DataType) ExpectedUnit() string {
	switch d {
	case DailyConsumption, DailyProduction:
		return "Wh"
	case ConsumptionLoadCurve, ProductionLoadCurve:
		return "W"
	case ConsumptionMaxPower:
		return "VA"
	default:
		return ""
	}
}

// IsLoadCurve reports whether the endpoint returns sub-daily readings
func (d DataType) IsLoadCurve() bool {
	return d == ConsumptionLoadCurve || d == ProductionLoadCurve
}
