package otp

import "strings"

// MaskEmail keeps the first two characters of the local part, e.g.
// ab****@example.com.
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "****@****.com"
	}
	if len(local) <= 2 {
		return "**@" + domain
	}
	return local[:2] + "****@" + domain
}

// MaskPhone keeps the last four digits, e.g. ******1234.
func MaskPhone(phone string) string {
	if len(phone) < 4 {
		return "****"
	}
	return "******" + phone[len(phone)-4:]
}
