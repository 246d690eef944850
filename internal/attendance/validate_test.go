package attendance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classattend/internal/attendance"
)

func TestValidateDate(t *testing.T) {
	valid := []string{"2026-01-01", "2024-02-29", "2026-12-31"}
	invalid := []string{"", "2026-02-30", "2025-02-29", "2026-13-01", "26-01-01", "2026-1-1", "2026-01-01T00:00"}
	for _, v := range valid {
		assert.NoError(t, attendance.ValidateDate(v), v)
	}
	for _, v := range invalid {
		assert.ErrorIs(t, attendance.ValidateDate(v), attendance.ErrValidation, v)
	}
}

func TestValidateTime(t *testing.T) {
	for _, v := range []string{"00:00", "09:30", "23:59"} {
		assert.NoError(t, attendance.ValidateTime(v), v)
	}
	for _, v := range []string{"", "9:30", "24:00", "12:60", "0930", "09:30:00"} {
		assert.ErrorIs(t, attendance.ValidateTime(v), attendance.ErrValidation, v)
	}
}

func TestValidatePIN(t *testing.T) {
	for _, v := range []string{"1234", "12345", "000000"} {
		assert.NoError(t, attendance.ValidatePIN(v), v)
	}
	for _, v := range []string{"", "123", "1234567", "12a4", " 1234"} {
		assert.ErrorIs(t, attendance.ValidatePIN(v), attendance.ErrValidation, v)
	}
}

func TestRandomPIN(t *testing.T) {
	for i := 0; i < 20; i++ {
		pin, err := attendance.RandomPIN()
		require.NoError(t, err)
		assert.Len(t, pin, 6)
		assert.NoError(t, attendance.ValidatePIN(pin))
	}
}

func TestDateRange(t *testing.T) {
	assert.NoError(t, attendance.DateRange{}.Validate())
	assert.NoError(t, attendance.DateRange{From: "2026-03-01"}.Validate())
	assert.NoError(t, attendance.DateRange{From: "2026-03-01", To: "2026-03-01"}.Validate())
	assert.ErrorIs(t, attendance.DateRange{From: "2026-03-02", To: "2026-03-01"}.Validate(), attendance.ErrValidation)
	assert.ErrorIs(t, attendance.DateRange{To: "2026-02-31"}.Validate(), attendance.ErrValidation)

	r := attendance.DateRange{From: "2026-03-01", To: "2026-03-31"}
	assert.True(t, r.Contains("2026-03-01"))
	assert.True(t, r.Contains("2026-03-31"))
	assert.False(t, r.Contains("2026-04-01"))
	assert.True(t, attendance.DateRange{}.Contains("1999-01-01"))
}

func TestParseEnums(t *testing.T) {
	s, err := attendance.ParseStatus("Excused")
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusExcused, s)
	_, err = attendance.ParseStatus("excused")
	assert.ErrorIs(t, err, attendance.ErrValidation)

	rt, err := attendance.ParseRequestType("Late")
	require.NoError(t, err)
	assert.Equal(t, attendance.RequestLate, rt)
	_, err = attendance.ParseRequestType("Sick")
	assert.ErrorIs(t, err, attendance.ErrValidation)

	rs, err := attendance.ParseRequestStatus("PENDING")
	require.NoError(t, err)
	assert.Equal(t, attendance.RequestPending, rs)
	_, err = attendance.ParseRequestStatus("OPEN")
	assert.ErrorIs(t, err, attendance.ErrValidation)
}

func TestEffectiveStatus(t *testing.T) {
	assert.Equal(t, attendance.StatusAbsent, attendance.EffectiveStatus(nil))
	assert.Equal(t, attendance.StatusLate, attendance.EffectiveStatus(&attendance.Record{Status: attendance.StatusLate}))
}

func TestKind(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetSession(f.ctx, "missing")
	assert.Equal(t, attendance.ErrNotFound, attendance.Kind(err))
	assert.Nil(t, attendance.Kind(nil))
	assert.Nil(t, attendance.Kind(assert.AnError))
}
