package valentineapi

type createRequest struct {
	SenderPhone   string   `json:"sender_phone"`
	ReceiverPhone string   `json:"receiver_phone"`
	Message       string   `json:"message"`
	Activities    []string `json:"activities"`
}

type createResponse struct {
	Success     bool   `json:"success"`
	ValentineID string `json:"valentine_id"`
}

type verifyOTPRequest struct {
	ValentineID string `json:"valentine_id"`
	OTP         string `json:"otp"`
}

type verifyOTPResponse struct {
	Success   bool   `json:"success"`
	ShortCode string `json:"short_code"`
}

type resendOTPRequest struct {
	ValentineID string `json:"valentine_id"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type linkRequest struct {
	ShortCode string `json:"shortCode"`
}

type detailsResponse struct {
	Status     string   `json:"status"`
	Message    string   `json:"message"`
	Activities []string `json:"activities"`
}

type guessRequest struct {
	ShortCode    string `json:"shortCode"`
	GuessedPhone string `json:"guessed_phone"`
}

type guessResponse struct {
	Correct           bool `json:"correct"`
	RemainingAttempts int  `json:"remaining_attempts"`
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

type respondRequest struct {
	ShortCode  string   `json:"shortCode"`
	Response   string   `json:"response"`
	Activities []string `json:"activities"`
}
