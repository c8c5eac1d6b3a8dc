package notify

import (
	"strings"
)

// OTPBody is sent to the sender after create and resend.
func OTPBody(code string) string {
	return "Your Valentine OTP is " + code
}

// LinkBody is sent to the receiver once the sender is verified.
// It carries the short link only, never the capability.
func LinkBody(link string) string {
	return "Someone sent you a valentine 💌 Guess who sent it: " + link
}

// ResponseBody is sent to the sender when the receiver answers.
func ResponseBody(accepted bool, activities []string) string {
	if !accepted {
		return "Your Valentine was viewed but declined. I'm sorry."
	}
	plans := strings.Join(activities, ", ")
	if plans == "" {
		plans = "to be decided"
	}
	return "They said YES!!! \n\n Plans: " + plans
}
