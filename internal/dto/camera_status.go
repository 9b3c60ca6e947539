package dto

// CameraInfo is a snapshot of the current device settings.
type CameraInfo struct {
	Width      int  `json:"width"`
	Height     int  `json:"height"`
	FPS        int  `json:"fps"`
	Autofocus  bool `json:"autofocus"`
	Focus      int  `json:"focus"`
	Brightness int  `json:"brightness"`
	Contrast   int  `json:"contrast"`
	Saturation int  `json:"saturation"`
}

// CameraCapability tells whether a device property can be read and written.
type CameraCapability struct {
	Supported    bool    `json:"supported"`
	Writable     bool    `json:"writable"`
	CurrentValue float64 `json:"current_value"`
}

// CameraStatus is what /api/camera reports. It is taken once when the device is opened.
type CameraStatus struct {
	Index        int                         `json:"index"`
	Source       string                      `json:"source"`
	Info         CameraInfo                  `json:"info"`
	Capabilities map[string]CameraCapability `json:"capabilities,omitempty"`
}
