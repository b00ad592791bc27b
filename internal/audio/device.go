package audio

// Device describes one PortAudio host device.
type Device struct {
	ID                int     `json:"id"`
	Name              string  `json:"name"`
	HostAPI           string  `json:"hostApi,omitempty"`
	MaxInputChannels  int     `json:"maxInputChannels"`
	MaxOutputChannels int     `json:"maxOutputChannels"`
	DefaultSampleRate float64 `json:"defaultSampleRate"`
	IsDefaultInput    bool    `json:"isDefaultInput"`
}

// Kind labels the device by the directions it supports.
func (d Device) Kind() string {
	switch {
	case d.MaxInputChannels > 0 && d.MaxOutputChannels > 0:
		return "Input/Output"
	case d.MaxInputChannels > 0:
		return "Input"
	case d.MaxOutputChannels > 0:
		return "Output"
	}
	return "Unknown"
}

// CanCapture reports whether the device has at least one input channel.
func (d Device) CanCapture() bool { return d.MaxInputChannels > 0 }

// HostDevices returns every device PortAudio knows about. PortAudio must be
// initialised by the caller.
func HostDevices() ([]Device, error) {
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}

	defaultName := ""
	if def, err := paLibDefaultInputDeviceFunc(); err == nil && def != nil {
		defaultName = def.Name
	}

	devices := make([]Device, len(infos))
	for i, info := range infos {
		d := Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			IsDefaultInput:    info.Name == defaultName && info.MaxInputChannels > 0,
		}
		if info.HostApi != nil {
			d.HostAPI = info.HostApi.Name
		}
		devices[i] = d
	}
	return devices, nil
}

// GetDevices initialises PortAudio for the duration of the call and returns
// the host devices.
func GetDevices() ([]Device, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	defer Terminate()
	return HostDevices()
}
