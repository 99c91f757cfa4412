package domain

// Device is a registered upstream device the sync engine polls.
type Device struct {
	ID          string
	SecretKey   string
	MonitorItem string
}

// Registration is a raw row from the device registry. Empty strings stand in
// for NULL columns.
type Registration struct {
	DeviceID    string
	DeviceKey   string
	MonitorItem string
	CustomName  string
	DeviceName  string
	Latitude    string
	Longitude   string
}

// NewRegistration creates a registration with the fields the sync engine needs.
func NewRegistration(deviceID, deviceKey, monitorItem string) Registration {
	return Registration{
		DeviceID:    deviceID,
		DeviceKey:   deviceKey,
		MonitorItem: monitorItem,
	}
}

// Device converts the registration to a Device. It reports false when the
// identifier, key or monitor item is missing.
func (r Registration) Device() (Device, bool) {
	if r.DeviceID == "" || r.DeviceKey == "" || r.MonitorItem == "" {
		return Device{}, false
	}
	return Device{
		ID:          r.DeviceID,
		SecretKey:   r.DeviceKey,
		MonitorItem: r.MonitorItem,
	}, true
}

// CompleteDevices filters registrations down to usable devices, keeping order.
func CompleteDevices(regs []Registration) []Device {
	devices := make([]Device, 0, len(regs))
	for _, reg := range regs {
		if device, ok := reg.Device(); ok {
			devices = append(devices, device)
		}
	}
	return devices
}

// MonitorItems returns the monitor item of every device, in order.
func MonitorItems(devices []Device) []string {
	items := make([]string, len(devices))
	for i, d := range devices {
		items[i] = d.MonitorItem
	}
	return items
}
