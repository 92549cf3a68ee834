package radio

import (
	"fmt"
)

type HzBand struct {
	Center uint64 `json:"center_hz"`
	Width  uint64 `json:"width_hz"`
}

func (hzb HzBand) String() string {
	return fmt.Sprintf("%.3fMHz@%dHz", float64(hzb.Center)/1e6, hzb.Width)
}
