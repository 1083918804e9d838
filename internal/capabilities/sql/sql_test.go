package sql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestampTriesRFC3339ThenSpaceForm(t *testing.T) {
	ts, err := ParseTimestamp("2024-01-02T15:04:05Z")
	require.NoError(t, err)
	assert.Equal(t, 2024, ts.Year())

	ts, err = ParseTimestamp("2024-01-02 15:04:05.5")
	require.NoError(t, err)
	assert.Equal(t, 2, ts.Day())
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	_, err := ParseTimestamp("not-a-timestamp")
	require.Error(t, err)
}

func TestValueDriverValueNullIgnoresType(t *testing.T) {
	v := NewNull(TypeString)
	assert.Nil(t, v.driverValue())
}

func TestValueDriverValueFormatsTimestampAsRFC3339(t *testing.T) {
	when := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	v := Value{Type: TypeTimestamp, Time: when}
	assert.Equal(t, "2024-03-04T05:06:07Z", v.driverValue())
}

func TestValueDriverValuePassesThroughScalars(t *testing.T) {
	assert.Equal(t, true, Value{Type: TypeBool, Bool: true}.driverValue())
	assert.Equal(t, int64(7), Value{Type: TypeI64, Int: 7}.driverValue())
	assert.Equal(t, "hi", Value{Type: TypeString, Str: "hi"}.driverValue())
}
