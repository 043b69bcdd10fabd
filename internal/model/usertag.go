// Package model holds the wire-level value objects shared by every
// component of the pipeline: the user-tag event and its building blocks.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Device identifies the client device that produced an event.
type Device string

const (
	DevicePC     Device = "PC"
	DeviceMobile Device = "MOBILE"
	DeviceTV     Device = "TV"
)

func (d Device) valid() bool {
	switch d {
	case DevicePC, DeviceMobile, DeviceTV:
		return true
	default:
		return false
	}
}

// Action is the kind of interaction a user-tag records.
type Action string

const (
	ActionView Action = "VIEW"
	ActionBuy  Action = "BUY"
)

func (a Action) valid() bool {
	return a == ActionView || a == ActionBuy
}

// DBName returns the record-store bin/set name for this action ("view" or
// "buy").
func (a Action) DBName() string {
	switch a {
	case ActionBuy:
		return "buy"
	default:
		return "view"
	}
}

// ProductInfo describes the product a user-tag refers to.
type ProductInfo struct {
	ProductID  int64  `json:"product_id"`
	BrandID    string `json:"brand_id"`
	CategoryID string `json:"category_id"`
	Price      int64  `json:"price"`
}

// UserTag is a single user-tag event as received on POST /user_tags and as
// produced onto the event bus.
type UserTag struct {
	Time        time.Time   `json:"time"`
	Cookie      string      `json:"cookie"`
	Country     string      `json:"country"`
	Device      Device      `json:"device"`
	Action      Action      `json:"action"`
	Origin      string      `json:"origin"`
	ProductInfo ProductInfo `json:"product_info"`
}

// timeLayout is RFC3339 with exactly millisecond precision and a literal
// "Z" suffix, the wire form every component serializes UserTag.Time as.
const timeLayout = "2006-01-02T15:04:05.000Z"

// Validate rejects a malformed device or action, and a negative price.
func (t UserTag) Validate() error {
	if !t.Device.valid() {
		return fmt.Errorf("invalid device: %q", t.Device)
	}
	if !t.Action.valid() {
		return fmt.Errorf("invalid action: %q", t.Action)
	}
	if t.ProductInfo.Price < 0 {
		return fmt.Errorf("invalid price: %d", t.ProductInfo.Price)
	}
	return nil
}

// MarshalJSON renders Time using the millisecond-precision "Z" form
// instead of Go's default nanosecond RFC3339Nano.
func (t UserTag) MarshalJSON() ([]byte, error) {
	type alias UserTag
	return json.Marshal(struct {
		Time string `json:"time"`
		alias
	}{
		Time:  t.Time.UTC().Format(timeLayout),
		alias: alias(t),
	})
}

// UnmarshalJSON accepts the millisecond "Z" form (and, leniently, any
// RFC3339 variant a client might send).
func (t *UserTag) UnmarshalJSON(data []byte) error {
	type alias UserTag
	aux := struct {
		Time string `json:"time"`
		*alias
	}{alias: (*alias)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	parsed, err := time.Parse(timeLayout, aux.Time)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339Nano, aux.Time)
		if err != nil {
			return fmt.Errorf("invalid user-tag time %q: %w", aux.Time, err)
		}
	}
	t.Time = parsed.UTC()
	return nil
}
