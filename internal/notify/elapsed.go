package notify

import (
	"fmt"
	"time"
)

// FormatElapsed 将耗时格式化为 HH:MM:SS.ss。
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int64(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int64(d / time.Minute)
	d -= time.Duration(minutes) * time.Minute
	seconds := d.Seconds()
	return fmt.Sprintf("%02d:%02d:%05.2f", hours, minutes, seconds)
}
