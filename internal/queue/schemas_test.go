package queue

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOneshotValid(t *testing.T) {
	body := fmt.Sprintf(`{"type":"oneshot","subtype":"gpu","proj_id":%q,"job_id":%q,"count":3,"timestamp":1700000000}`,
		uuid.New(), uuid.New())
	ev, err := ParseOneshot([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "gpu", ev.Subtype)
	assert.Equal(t, int64(3), ev.Count)
}

func TestParseOneshotRejectsWrongType(t *testing.T) {
	body := fmt.Sprintf(`{"type":"longrun","subtype":"gpu","proj_id":%q,"job_id":%q,"count":1,"timestamp":1}`,
		uuid.New(), uuid.New())
	_, err := ParseOneshot([]byte(body))
	assert.Error(t, err)
}

func TestParseOneshotRejectsMissingRequiredField(t *testing.T) {
	body := `{"type":"oneshot","subtype":"gpu","count":1,"timestamp":1}`
	_, err := ParseOneshot([]byte(body))
	assert.Error(t, err, "proj_id and job_id are required")
}

func TestParseOneshotRejectsMalformedJSON(t *testing.T) {
	_, err := ParseOneshot([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseLongrunValidatesStatusEnum(t *testing.T) {
	base := fmt.Sprintf(`{"type":"longrun","subtype":"gpu","proj_id":%q,"job_id":%q,"status":%%q,"timestamp":1700000000}`,
		uuid.New(), uuid.New())

	ok := fmt.Sprintf(base, "running")
	_, err := ParseLongrun([]byte(ok))
	assert.NoError(t, err)

	bad := fmt.Sprintf(base, "paused")
	_, err = ParseLongrun([]byte(bad))
	assert.Error(t, err)
}

func TestParseLongrunInstancesOptional(t *testing.T) {
	body := fmt.Sprintf(`{"type":"longrun","subtype":"gpu","proj_id":%q,"job_id":%q,"status":"started","timestamp":1700000000}`,
		uuid.New(), uuid.New())
	ev, err := ParseLongrun([]byte(body))
	require.NoError(t, err)
	assert.Nil(t, ev.Instances)
}

func TestParseStorageRequiresSubtypeStorage(t *testing.T) {
	valid := fmt.Sprintf(`{"type":"storage","subtype":"storage","proj_id":%q,"size":100,"timestamp":1700000000}`, uuid.New())
	_, err := ParseStorage([]byte(valid))
	assert.NoError(t, err)

	invalid := fmt.Sprintf(`{"type":"storage","subtype":"other","proj_id":%q,"size":100,"timestamp":1700000000}`, uuid.New())
	_, err = ParseStorage([]byte(invalid))
	assert.Error(t, err)
}

func TestTimestampWindowAcceptsWithinBounds(t *testing.T) {
	w := TimestampWindow{Past: time.Hour, Future: time.Minute}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	within := now.Add(-30 * time.Minute).Unix()
	assert.NoError(t, w.ValidateTimestamp(now, within))
}

func TestTimestampWindowRejectsTooFarInPast(t *testing.T) {
	w := TimestampWindow{Past: time.Hour, Future: time.Minute}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tooOld := now.Add(-2 * time.Hour).Unix()
	assert.Error(t, w.ValidateTimestamp(now, tooOld))
}

func TestTimestampWindowRejectsTooFarInFuture(t *testing.T) {
	w := TimestampWindow{Past: time.Hour, Future: time.Minute}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tooFuture := now.Add(5 * time.Minute).Unix()
	assert.Error(t, w.ValidateTimestamp(now, tooFuture))
}

func TestEventTimeIsUTC(t *testing.T) {
	got := EventTime(1700000000)
	assert.Equal(t, time.UTC, got.Location())
}
