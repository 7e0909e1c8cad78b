package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeCursorToken(t *testing.T) {
	// Test case 1: Standard values
	createdAt := time.Date(2025, 5, 15, 14, 30, 45, 123456789, time.UTC)
	expenseID := "8f14e45f-ceea-4672-9b5a-0c8f3f2e9a11"

	token := EncodeCursorToken(createdAt, expenseID)
	assert.NotEmpty(t, token, "Token should not be empty")

	decodedCreatedAt, decodedID, err := DecodeCursorToken(token)
	assert.NoError(t, err, "Decoding should not return an error")
	assert.Equal(t, createdAt, decodedCreatedAt, "Created at time should match after decode")
	assert.Equal(t, expenseID, decodedID, "Row id should match after decode")

	// Test case 2: Zero time value
	zeroToken := EncodeCursorToken(time.Time{}, "id")
	decodedZeroTime, decodedZeroID, err := DecodeCursorToken(zeroToken)
	assert.NoError(t, err, "Decoding zero time should not return an error")
	assert.Equal(t, time.Time{}, decodedZeroTime, "Zero time should match after decode")
	assert.Equal(t, "id", decodedZeroID, "Row id should match after decode")

	// Test case 3: Current time values
	now := time.Now().UTC()
	nowToken := EncodeCursorToken(now, "abc")
	decodedNow, _, err := DecodeCursorToken(nowToken)
	assert.NoError(t, err, "Decoding current time should not return an error")
	assert.True(t, now.Equal(decodedNow), "Current time should match after decode")

	// Test case 4: ids containing the separator survive the round trip
	pipeToken := EncodeCursorToken(now, "left|right")
	_, decodedPipeID, err := DecodeCursorToken(pipeToken)
	assert.NoError(t, err)
	assert.Equal(t, "left|right", decodedPipeID, "Separator inside the id should be preserved")
}

func TestDecodeCursorTokenError(t *testing.T) {
	// Test invalid base64
	_, _, err := DecodeCursorToken("this is not base64!")
	assert.Error(t, err, "Should return an error for invalid base64")
	assert.Contains(t, err.Error(), "base64 decode", "Error should mention base64 decoding")

	// Test invalid format (missing separator)
	invalidToken := "MjAyMy0wNS0xNVQwMDowMDowMFo=" // Base64 encoded timestamp without separator
	_, _, err = DecodeCursorToken(invalidToken)
	assert.Error(t, err, "Should return an error for invalid token format")
	assert.Contains(t, err.Error(), "split", "Error should mention splitting issue")

	// Test invalid timestamp
	invalidDateToken := "bm90YWRhdGV8YWJj" // Base64 encoded "notadate|abc"
	_, _, err = DecodeCursorToken(invalidDateToken)
	assert.Error(t, err, "Should return an error for invalid timestamp")
	assert.Contains(t, err.Error(), "created_at parse", "Error should mention timestamp parsing issue")
}
