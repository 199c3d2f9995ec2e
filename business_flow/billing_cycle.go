package businessflow

import (
	"time"

	"github.com/cotizabot/cotizabot/utils"
)

// DefaultLateSignupDay is the day of month from which a new account skips the next cycle
const DefaultLateSignupDay = utils.LateSignupDay

// InitialDueDate returns the first due date of an account opened at now. From lateSignupDay
// onwards the account is first due on the 1st of the month after next. Earlier in the month it
// is due on the 1st of the current month if that is still ahead, otherwise on the 1st of the
// next month. The result is midnight in now's location.
func InitialDueDate(now time.Time, lateSignupDay int) time.Time {
	if lateSignupDay <= 0 {
		lateSignupDay = DefaultLateSignupDay
	}

	if now.Day() >= lateSignupDay {
		return utils.FirstOfMonthAfter(now, 2)
	}

	if first := utils.FirstOfMonth(now); first.After(now) {
		return first
	}
	return utils.FirstOfMonthAfter(now, 1)
}

// NextCycleDueDate returns the due date set by a monthly charge posted at now
func NextCycleDueDate(now time.Time) time.Time {
	return utils.FirstOfMonthAfter(now, 1)
}

// IsFirstOfMonth reports whether now is the 1st in its location
func IsFirstOfMonth(now time.Time) bool {
	return now.Day() == 1
}
