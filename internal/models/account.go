package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxDevices is the size of an account's device fleet.
const MaxDevices = 5

type Account struct {
	ID           uuid.UUID      `db:"id"            json:"id"`
	Phone        string         `db:"phone"         json:"phone"`
	Email        string         `db:"email"         json:"email"`
	PasswordHash string         `db:"password_hash" json:"-"`
	TokenVersion int64          `db:"token_version" json:"tokenVersion"`
	TokenFamily  string         `db:"token_family"  json:"tokenFamily"`
	IsBlocked    bool           `db:"is_blocked"    json:"isBlocked"`
	IsVerified   bool           `db:"is_verified"   json:"isVerified"`
	IsAdmin      bool           `db:"is_admin"      json:"isAdmin"`
	Devices      []DeviceRecord `db:"-"             json:"devices"`
	CreatedAt    time.Time      `db:"created_at"    json:"createdAt"`
	UpdatedAt    time.Time      `db:"updated_at"    json:"updatedAt"`
}

type DeviceRecord struct {
	DeviceID    string    `db:"device_id"    json:"deviceId"`
	DeviceToken string    `db:"device_token" json:"deviceToken,omitempty"`
	LastUsedAt  time.Time `db:"last_used_at" json:"lastUsedAt"`
}

// Active reports whether the device still holds a session proof.
func (d DeviceRecord) Active() bool {
	return d.DeviceToken != ""
}

func (a *Account) device(deviceID string) int {
	for i := range a.Devices {
		if a.Devices[i].DeviceID == deviceID {
			return i
		}
	}
	return -1
}

// RegisterDevice binds deviceID to the account. A known device is updated in
// place; a new one is appended unless the fleet is full.
func (a *Account) RegisterDevice(deviceID, token string, now time.Time) error {
	if i := a.device(deviceID); i >= 0 {
		a.Devices[i].DeviceToken = token
		a.Devices[i].LastUsedAt = now
		return nil
	}

	if len(a.Devices) >= MaxDevices {
		return ErrDeviceLimitExceeded
	}

	a.Devices = append(
		a.Devices, DeviceRecord{
			DeviceID:    deviceID,
			DeviceToken: token,
			LastUsedAt:  now,
		},
	)
	return nil
}

// TouchDevice bumps LastUsedAt of an active device.
func (a *Account) TouchDevice(deviceID string, now time.Time) error {
	i := a.device(deviceID)
	if i < 0 || !a.Devices[i].Active() {
		return ErrDeviceNotFound
	}

	a.Devices[i].LastUsedAt = now
	return nil
}

// ClearDevice drops the session proof of a device but keeps its slot.
func (a *Account) ClearDevice(deviceID string) error {
	i := a.device(deviceID)
	if i < 0 {
		return ErrDeviceNotFound
	}

	a.Devices[i].DeviceToken = ""
	return nil
}

// ClearAllDevices drops the session proof of every device.
func (a *Account) ClearAllDevices() {
	for i := range a.Devices {
		a.Devices[i].DeviceToken = ""
	}
}

// RemoveDevice frees the slot held by deviceID.
func (a *Account) RemoveDevice(deviceID string) error {
	i := a.device(deviceID)
	if i < 0 {
		return ErrDeviceNotFound
	}

	a.Devices = append(a.Devices[:i], a.Devices[i+1:]...)
	return nil
}

func (a *Account) ActiveDevice(deviceID string) bool {
	i := a.device(deviceID)
	return i >= 0 && a.Devices[i].Active()
}

// RotateFamily voids every token issued so far.
func (a *Account) RotateFamily() {
	a.TokenVersion++
	a.TokenFamily = uuid.NewString()
}
