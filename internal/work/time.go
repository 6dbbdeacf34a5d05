package work

import "time"

func defaultNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
