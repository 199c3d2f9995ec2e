package businessflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInitialDueDate(t *testing.T) {
	mexico, err := time.LoadLocation("America/Mexico_City")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "LateSignupSkipsNextCycle",
			now:  time.Date(2025, time.March, 27, 10, 0, 0, 0, time.UTC),
			want: time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "LateSignupDayItself",
			now:  time.Date(2025, time.March, 25, 0, 0, 0, 0, time.UTC),
			want: time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "EarlySignupIsDueNextMonth",
			now:  time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC),
			want: time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "SignupOnTheFirst",
			now:  time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "DayBeforeLateSignup",
			now:  time.Date(2025, time.March, 24, 23, 59, 0, 0, time.UTC),
			want: time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "LateDecemberRollsIntoFebruary",
			now:  time.Date(2025, time.December, 28, 12, 0, 0, 0, time.UTC),
			want: time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "EarlyDecemberRollsIntoJanuary",
			now:  time.Date(2025, time.December, 3, 12, 0, 0, 0, time.UTC),
			want: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "KeepsLocation",
			now:  time.Date(2025, time.June, 26, 20, 0, 0, 0, mexico),
			want: time.Date(2025, time.August, 1, 0, 0, 0, 0, mexico),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InitialDueDate(tt.now, DefaultLateSignupDay)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
			assert.Equal(t, tt.now.Location(), got.Location())
		})
	}

	t.Run("NonPositiveLateDayUsesDefault", func(t *testing.T) {
		now := time.Date(2025, time.March, 27, 10, 0, 0, 0, time.UTC)
		assert.Equal(t, InitialDueDate(now, DefaultLateSignupDay), InitialDueDate(now, 0))
	})

	t.Run("CustomLateDay", func(t *testing.T) {
		now := time.Date(2025, time.March, 20, 10, 0, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC), InitialDueDate(now, 20))
	})
}

func TestNextCycleDueDate(t *testing.T) {
	assert.Equal(t,
		time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		NextCycleDueDate(time.Date(2025, time.December, 1, 6, 0, 0, 0, time.UTC)))
	assert.Equal(t,
		time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		NextCycleDueDate(time.Date(2025, time.February, 28, 6, 0, 0, 0, time.UTC)))
}

func TestIsFirstOfMonth(t *testing.T) {
	assert.True(t, IsFirstOfMonth(time.Date(2025, time.July, 1, 23, 59, 0, 0, time.UTC)))
	assert.False(t, IsFirstOfMonth(time.Date(2025, time.July, 2, 0, 0, 0, 0, time.UTC)))
}
