package upstream

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// snapshotResponse is the subset of the sale snapshot payload we read.
type snapshotResponse struct {
	Status   responseStatus `json:"status"`
	Property []property     `json:"property"`
}

type responseStatus struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type property struct {
	Identifier struct {
		AttomID flexString `json:"attomId"`
	} `json:"identifier"`
	Address struct {
		OneLine string `json:"oneLine"`
		Line1   string `json:"line1"`
		Line2   string `json:"line2"`
	} `json:"address"`
	Location struct {
		Latitude  flexNumber `json:"latitude"`
		Longitude flexNumber `json:"longitude"`
	} `json:"location"`
	Summary struct {
		PropertyType string     `json:"propertyType"`
		YearBuilt    flexNumber `json:"yearbuilt"`
		PropLandUse  string     `json:"propLandUse"`
	} `json:"summary"`
	Building struct {
		Size struct {
			UniversalSize flexNumber `json:"universalsize"`
			LotSize       flexNumber `json:"lotsize"`
		} `json:"size"`
		Rooms struct {
			Beds       flexNumber `json:"beds"`
			BathsTotal flexNumber `json:"bathstotal"`
		} `json:"rooms"`
	} `json:"building"`
	Sale struct {
		SaleTransDate string `json:"saleTransDate"`
		SaleType      string `json:"saleType"`
		Amount        struct {
			SaleAmt flexNumber `json:"saleamt"`
		} `json:"amount"`
	} `json:"sale"`
	LastModified string `json:"lastModified"`
}

// flexNumber accepts a JSON number, a numeric string or null. Anything
// that does not parse leaves Valid false.
type flexNumber struct {
	Value float64
	Valid bool
}

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = flexNumber{}
		return nil
	}

	text := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		text = strings.TrimSpace(s)
	}

	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		*n = flexNumber{}
		return nil
	}
	*n = flexNumber{Value: v, Valid: true}
	return nil
}

// positive reports the value when it is present and greater than zero.
func (n flexNumber) positive() (float64, bool) {
	if !n.Valid || n.Value <= 0 {
		return 0, false
	}
	return n.Value, true
}

// flexString accepts either a JSON string or a bare number.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(strings.TrimSpace(v))
		return nil
	}
	*s = flexString(data)
	return nil
}
