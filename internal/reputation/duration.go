package reputation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"inidars/internal/model"
)

const day = 24 * time.Hour

// maxBlockDays is the largest day count a time.Duration can hold.
const maxBlockDays = math.MaxInt64 / int64(day)

// ParseBlockDuration accepts "permanent" (or empty), Go durations such as
// "90m" or "24h", and whole days such as "7d". Permanent blocks return 0.
func ParseBlockDuration(value string) (time.Duration, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" || value == model.PermanentBlock {
		return 0, nil
	}

	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.ParseInt(days, 10, 64)
		if err != nil || n <= 0 || n > maxBlockDays {
			return 0, &model.ValidationError{Field: "duration", Message: fmt.Sprintf("invalid duration %q", value)}
		}
		d := time.Duration(n) * day
		if d <= 0 {
			return 0, &model.ValidationError{Field: "duration", Message: fmt.Sprintf("invalid duration %q", value)}
		}
		return d, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, &model.ValidationError{Field: "duration", Message: fmt.Sprintf("invalid duration %q", value)}
	}
	return d, nil
}

func formatBlockDuration(d time.Duration) string {
	if d == 0 {
		return model.PermanentBlock
	}
	if d%day == 0 {
		return fmt.Sprintf("%dd", d/day)
	}
	return d.String()
}
