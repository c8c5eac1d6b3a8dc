package valentine

import "time"

// ApplyFailedGuess records one wrong guess. The attempt that reaches the
// budget moves the record to EXPIRED in the same step.
func ApplyFailedGuess(r Record, now time.Time) (Record, error) {
	if r.Status != StatusPending {
		return r, ErrNotPending
	}
	r.GuessAttempts++
	if r.GuessAttempts >= r.MaxAttempts {
		r.Status = StatusExpired
	}
	r.UpdatedAt = now
	return r, nil
}

// ApplyResponse closes a PENDING record with the receiver's answer.
func ApplyResponse(r Record, resp Response, activities []string, now time.Time) (Record, error) {
	if r.Status != StatusPending {
		return r, ErrNotPending
	}
	r.Status = resp.Status()
	if resp == ResponseYes {
		r.ResponseActivities = cloneStrings(activities)
	} else {
		r.ResponseActivities = []string{}
	}
	at := now
	r.RespondedAt = &at
	r.UpdatedAt = now
	return r, nil
}

// ApplyOTP stores a fresh code on a PENDING record.
func ApplyOTP(r Record, code string, expiresAt, now time.Time) (Record, error) {
	if r.Status != StatusPending {
		return r, ErrNotPending
	}
	c, e := code, expiresAt
	r.OTPCode, r.OTPExpiresAt = &c, &e
	r.UpdatedAt = now
	return r, nil
}

// ApplyOTPVerified clears the code and marks the sender verified.
func ApplyOTPVerified(r Record, now time.Time) Record {
	r.OTPCode, r.OTPExpiresAt = nil, nil
	r.OTPVerified = true
	r.UpdatedAt = now
	return r
}
