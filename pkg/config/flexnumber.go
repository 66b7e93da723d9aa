package config

import (
	"encoding/json"
	"strconv"

	"github.com/drawdownguard/collar-engine/pkg/money"
)

// FlexNumber accepts either a JSON string or a JSON number, since config
// numerics may arrive as either and must be finite. It unmarshals into a
// money.Value so downstream arithmetic stays exact.
type FlexNumber struct {
	Value money.Value
}

func (f *FlexNumber) UnmarshalJSON(b []byte) error {
	var asString string
	if err := json.Unmarshal(b, &asString); err == nil {
		v, err := money.NewFromString(asString)
		if err != nil {
			return err
		}
		f.Value = v
		return nil
	}

	var asFloat float64
	if err := json.Unmarshal(b, &asFloat); err != nil {
		return err
	}
	if asFloat != asFloat || asFloat > 1e18 || asFloat < -1e18 {
		return &strconv.NumError{Func: "UnmarshalJSON", Num: string(b), Err: strconv.ErrRange}
	}
	f.Value = money.NewFromFloat(asFloat)
	return nil
}

func (f FlexNumber) MarshalJSON() ([]byte, error) {
	return f.Value.MarshalJSON()
}
