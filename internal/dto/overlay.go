package dto

// Overlay is the status text drawn in the corner of the preview window.
type Overlay struct {
	Total     int
	Mode      string
	Technique string
	Scale     float64
}
