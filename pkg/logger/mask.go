package logger

import "strings"

// MaskEmail keeps the first two characters of the local part.
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return email
	}
	if len(local) > 2 {
		local = local[:2]
	}
	return local + "***@" + domain
}

// MaskPhone keeps the last four digits.
func MaskPhone(phone string) string {
	if len(phone) > 4 {
		phone = phone[len(phone)-4:]
	}
	return "***" + phone
}
