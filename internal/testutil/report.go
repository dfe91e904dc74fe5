package testutil

import (
	"encoding/json"
	"fmt"
)

// DecodedReport is a completion report split into its three elements.
type DecodedReport struct {
	CallID  json.RawMessage
	Success bool
	Value   json.RawMessage
}

// DecodeReport splits a completion report for assertions.
func DecodeReport(report string) (DecodedReport, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(report), &parts); err != nil {
		return DecodedReport{}, err
	}
	if len(parts) != 3 {
		return DecodedReport{}, fmt.Errorf("report has %d elements", len(parts))
	}
	var d DecodedReport
	d.CallID = parts[0]
	if err := json.Unmarshal(parts[1], &d.Success); err != nil {
		return DecodedReport{}, err
	}
	d.Value = parts[2]
	return d, nil
}

// ErrorText returns the error text of a failed report.
func (d DecodedReport) ErrorText() string {
	var s string
	_ = json.Unmarshal(d.Value, &s)
	return s
}
